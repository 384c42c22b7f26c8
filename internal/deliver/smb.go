package deliver

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	smb2 "github.com/hirochachacha/go-smb2"

	"github.com/scan2target/scan2target/internal/domain"
)

// ParseSMBConnection normalizes the user-facing connection string into its
// server, share and optional subdirectory parts. All of these refer to the
// same place:
//
//	//server/share/path
//	\\server\share\path
//	server/share/path
func ParseSMBConnection(conn string) (server, share, sub string, err error) {
	s := strings.ReplaceAll(conn, `\`, "/")
	s = strings.TrimLeft(s, "/")

	var parts []string
	for _, p := range strings.Split(s, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("invalid smb connection %q: want server/share[/path]", conn)
	}
	return parts[0], parts[1], path.Join(parts[2:]...), nil
}

// SMBHandler delivers to CIFS/SMB network shares.
//
// Config keys: connection, username, password, domain (optional).
type SMBHandler struct {
	dialTimeout time.Duration
}

// NewSMBHandler creates an SMB handler with the given TCP dial timeout.
func NewSMBHandler(dialTimeout time.Duration) *SMBHandler {
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}
	return &SMBHandler{dialTimeout: dialTimeout}
}

func (h *SMBHandler) mount(ctx context.Context, target *domain.Target) (*smb2.Session, *smb2.Share, string, error) {
	server, shareName, sub, err := ParseSMBConnection(target.Config["connection"])
	if err != nil {
		return nil, nil, "", err
	}

	addr := server
	if _, _, splitErr := net.SplitHostPort(server); splitErr != nil {
		addr = net.JoinHostPort(server, "445")
	}
	conn, err := (&net.Dialer{Timeout: h.dialTimeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, "", fmt.Errorf("smb connect to %s failed: %w", server, err)
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     target.Config["username"],
			Password: target.Config["password"],
			Domain:   target.Config["domain"],
		},
	}
	session, err := dialer.DialContext(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, "", fmt.Errorf("smb authentication to %s failed: %w", server, err)
	}

	share, err := session.Mount(shareName)
	if err != nil {
		_ = session.Logoff()
		return nil, nil, "", fmt.Errorf("smb mount of %s failed: %w", shareName, err)
	}
	return session, share, sub, nil
}

// Upload copies the file into the configured share directory.
func (h *SMBHandler) Upload(ctx context.Context, filePath string, target *domain.Target, _ Metadata) error {
	session, share, sub, err := h.mount(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = session.Logoff() }()
	defer func() { _ = share.Umount() }()

	if sub != "" {
		// Best-effort; Create below reports the authoritative error if
		// the directory really is missing.
		_ = share.MkdirAll(sub, 0o755)
	}

	local, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = local.Close() }()

	remotePath := path.Join(sub, filepath.Base(filePath))
	remote, err := share.Create(remotePath)
	if err != nil {
		return fmt.Errorf("smb create %s failed: %w", remotePath, err)
	}
	if _, err := io.Copy(remote, local); err != nil {
		_ = remote.Close()
		return fmt.Errorf("smb write %s failed: %w", remotePath, err)
	}
	if err := remote.Close(); err != nil {
		return fmt.Errorf("smb close %s failed: %w", remotePath, err)
	}
	return nil
}

// Probe verifies the share is writable by creating and deleting a
// throwaway file, which catches permission problems a bare mount would
// miss.
func (h *SMBHandler) Probe(ctx context.Context, target *domain.Target) error {
	session, share, sub, err := h.mount(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = session.Logoff() }()
	defer func() { _ = share.Umount() }()

	probePath := path.Join(sub, ".scan2target-probe-"+uuid.NewString())
	f, err := share.Create(probePath)
	if err != nil {
		return fmt.Errorf("share is not writable: %w", err)
	}
	_ = f.Close()
	if err := share.Remove(probePath); err != nil {
		return fmt.Errorf("probe file could not be removed: %w", err)
	}
	return nil
}
