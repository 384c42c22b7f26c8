package deliver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/scan2target/scan2target/internal/domain"
)

// WebhookHandler posts artifacts to an arbitrary HTTP endpoint as a
// multipart form: the file plus one field per metadata entry, so receivers
// can route on job_id, format or profile.
//
// Config keys: url, auth_header (optional, sent verbatim as Authorization).
type WebhookHandler struct {
	client *http.Client
}

// NewWebhookHandler creates a webhook handler using the given HTTP client.
func NewWebhookHandler(client *http.Client) *WebhookHandler {
	return &WebhookHandler{client: client}
}

func webhookURL(cfg map[string]string) (string, error) {
	url := cfg["url"]
	if url == "" {
		return "", fmt.Errorf("webhook target is missing url")
	}
	return url, nil
}

// Upload posts the file and metadata to the configured endpoint.
func (h *WebhookHandler) Upload(ctx context.Context, filePath string, target *domain.Target, meta Metadata) error {
	url, err := webhookURL(target.Config)
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
	part, err := createFilePart(writer, "file", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to stage artifact: %w", err)
	}
	for key, value := range meta {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to stage field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if auth := target.Config["auth_header"]; auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus("webhook post", resp)
}

// Probe checks the endpoint with HEAD, falling back to GET for servers
// that reject HEAD outright.
func (h *WebhookHandler) Probe(ctx context.Context, target *domain.Target) error {
	url, err := webhookURL(target.Config)
	if err != nil {
		return err
	}

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return err
		}
		if auth := target.Config["auth_header"]; auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook endpoint is unreachable: %w", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusMethodNotAllowed {
			continue
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
		}
		// 2xx-4xx means something answers; a POST may still be the only
		// accepted method.
		return nil
	}
	return nil
}
