package deliver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scan2target/scan2target/internal/domain"
)

// EmailHandler delivers artifacts as mail attachments over SMTP with
// STARTTLS when the server offers it.
//
// Config keys: smtp_host, smtp_port (default 587), username, password,
// from, to, subject (optional).
type EmailHandler struct {
	dialTimeout time.Duration
}

// NewEmailHandler creates an email handler with the given dial timeout.
func NewEmailHandler(dialTimeout time.Duration) *EmailHandler {
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}
	return &EmailHandler{dialTimeout: dialTimeout}
}

func smtpAddr(cfg map[string]string) (addr, host string, err error) {
	host = cfg["smtp_host"]
	if host == "" {
		return "", "", fmt.Errorf("email target is missing smtp_host")
	}
	port := cfg["smtp_port"]
	if port == "" {
		port = "587"
	}
	return net.JoinHostPort(host, port), host, nil
}

func (h *EmailHandler) dial(cfg map[string]string) (*smtp.Client, error) {
	addr, host, err := smtpAddr(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", addr, h.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("smtp connect to %s failed: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake with %s failed: %w", addr, err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp starttls failed: %w", err)
		}
	}
	if user := cfg["username"]; user != "" {
		auth := smtp.PlainAuth("", user, cfg["password"], host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp authentication failed: %w", err)
		}
	}
	return client, nil
}

// Upload sends the file as a MIME attachment.
func (h *EmailHandler) Upload(_ context.Context, filePath string, target *domain.Target, meta Metadata) error {
	cfg := target.Config
	from := cfg["from"]
	to := cfg["to"]
	if from == "" || to == "" {
		return fmt.Errorf("email target is missing from/to addresses")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	subject := cfg["subject"]
	if subject == "" {
		subject = "Scanned document"
	}
	msg := buildMailMessage(from, to, subject, filepath.Base(filePath), data, meta["job_id"])

	client, err := h.dial(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp sender rejected: %w", err)
	}
	for _, rcpt := range strings.Split(to, ",") {
		if err := client.Rcpt(strings.TrimSpace(rcpt)); err != nil {
			return fmt.Errorf("smtp recipient %q rejected: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return client.Quit()
}

// Probe performs the SMTP handshake, including STARTTLS and auth where
// configured, without sending a message.
func (h *EmailHandler) Probe(_ context.Context, target *domain.Target) error {
	client, err := h.dial(target.Config)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return client.Quit()
}

func buildMailMessage(from, to, subject, filename string, attachment []byte, jobID string) []byte {
	const boundary = "scan2target-attachment"

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	if jobID != "" {
		fmt.Fprintf(&buf, "Scanned document attached (job %s).\r\n\r\n", jobID)
	} else {
		buf.WriteString("Scanned document attached.\r\n\r\n")
	}

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: %s; name=%q\r\n", contentType, filename)
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n\r\n", filename)

	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}
