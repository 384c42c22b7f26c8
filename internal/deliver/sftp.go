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

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/scan2target/scan2target/internal/domain"
)

// SFTPHandler delivers over SSH file transfer.
//
// Config keys: connection ("user@host" or just "host"), port (optional,
// default 22), username (when not part of connection), password or
// private_key, path (optional remote directory).
type SFTPHandler struct {
	dialTimeout time.Duration
}

// NewSFTPHandler creates an SFTP handler with the given dial timeout.
func NewSFTPHandler(dialTimeout time.Duration) *SFTPHandler {
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}
	return &SFTPHandler{dialTimeout: dialTimeout}
}

func sftpEndpoint(cfg map[string]string) (addr, user string, err error) {
	conn := cfg["connection"]
	user = cfg["username"]
	host := conn
	if at := strings.LastIndex(conn, "@"); at >= 0 {
		user = conn[:at]
		host = conn[at+1:]
	}
	if host == "" {
		return "", "", fmt.Errorf("sftp connection is missing a host")
	}
	if user == "" {
		return "", "", fmt.Errorf("sftp connection is missing a username")
	}
	port := cfg["port"]
	if port == "" {
		port = "22"
	}
	return net.JoinHostPort(host, port), user, nil
}

func sftpAuth(cfg map[string]string) ([]ssh.AuthMethod, error) {
	if key := cfg["private_key"]; key != "" {
		var signer ssh.Signer
		var err error
		if phrase := cfg["passphrase"]; phrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(phrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(key))
		}
		if err != nil {
			return nil, fmt.Errorf("invalid sftp private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if pw := cfg["password"]; pw != "" {
		return []ssh.AuthMethod{ssh.Password(pw)}, nil
	}
	return nil, fmt.Errorf("sftp target has neither password nor private_key")
}

func (h *SFTPHandler) connect(target *domain.Target) (*ssh.Client, *sftp.Client, error) {
	addr, user, err := sftpEndpoint(target.Config)
	if err != nil {
		return nil, nil, err
	}
	auth, err := sftpAuth(target.Config)
	if err != nil {
		return nil, nil, err
	}

	sshClient, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         h.dialTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sftp connect to %s failed: %w", addr, err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("sftp subsystem failed on %s: %w", addr, err)
	}
	return sshClient, client, nil
}

// Upload copies the file into the configured remote directory.
func (h *SFTPHandler) Upload(_ context.Context, filePath string, target *domain.Target, _ Metadata) error {
	sshClient, client, err := h.connect(target)
	if err != nil {
		return err
	}
	defer func() { _ = sshClient.Close() }()
	defer func() { _ = client.Close() }()

	remoteDir := target.Config["path"]
	if remoteDir != "" {
		if err := client.MkdirAll(remoteDir); err != nil {
			return fmt.Errorf("sftp mkdir %s failed: %w", remoteDir, err)
		}
	}

	local, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = local.Close() }()

	remotePath := path.Join(remoteDir, filepath.Base(filePath))
	remote, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp create %s failed: %w", remotePath, err)
	}
	if _, err := io.Copy(remote, local); err != nil {
		_ = remote.Close()
		return fmt.Errorf("sftp write %s failed: %w", remotePath, err)
	}
	if err := remote.Close(); err != nil {
		return fmt.Errorf("sftp close %s failed: %w", remotePath, err)
	}
	return nil
}

// Probe connects, opens the SFTP subsystem and stats the target directory.
func (h *SFTPHandler) Probe(_ context.Context, target *domain.Target) error {
	sshClient, client, err := h.connect(target)
	if err != nil {
		return err
	}
	defer func() { _ = sshClient.Close() }()
	defer func() { _ = client.Close() }()

	dir := target.Config["path"]
	if dir == "" {
		dir = "."
	}
	if _, err := client.Stat(dir); err != nil {
		return fmt.Errorf("sftp path %s is not accessible: %w", dir, err)
	}
	return nil
}
