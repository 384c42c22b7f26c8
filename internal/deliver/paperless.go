package deliver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/scan2target/scan2target/internal/domain"
)

// PaperlessHandler posts documents to a paperless-ngx consumption endpoint.
//
// Config keys: connection (base URL), api_token.
type PaperlessHandler struct {
	client *http.Client
}

// NewPaperlessHandler creates a paperless-ngx handler using the given HTTP
// client.
func NewPaperlessHandler(client *http.Client) *PaperlessHandler {
	return &PaperlessHandler{client: client}
}

func paperlessBase(cfg map[string]string) (string, error) {
	base := strings.TrimRight(cfg["connection"], "/")
	if base == "" {
		return "", fmt.Errorf("paperless target is missing connection URL")
	}
	return base, nil
}

// Upload posts the document to /api/documents/post_document/.
func (h *PaperlessHandler) Upload(ctx context.Context, filePath string, target *domain.Target, meta Metadata) error {
	base, err := paperlessBase(target.Config)
	if err != nil {
		return err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filename := filepath.Base(filePath)
	part, err := createFilePart(writer, "document", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to stage artifact: %w", err)
	}
	if title := meta["title"]; title != "" {
		if err := writer.WriteField("title", title); err != nil {
			return fmt.Errorf("failed to stage title: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/documents/post_document/", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Token "+target.Config["api_token"])

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("paperless upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus("paperless upload", resp)
}

// Probe checks the API root with the configured token.
func (h *PaperlessHandler) Probe(ctx context.Context, target *domain.Target) error {
	base, err := paperlessBase(target.Config)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+target.Config["api_token"])

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("paperless is unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus("paperless probe", resp)
}

// createFilePart writes a multipart file part carrying the real MIME type
// instead of the octet-stream default, which paperless uses for routing.
func createFilePart(writer *multipart.Writer, field, filename string) (io.Writer, error) {
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload part: %w", err)
	}
	return part, nil
}

func checkHTTPStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("%s returned status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, msg)
}
