package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/scan2target/scan2target/internal/domain"
)

// Cloud handlers keep their API base URLs as struct fields so tests can
// point them at a local server.

// GoogleDriveHandler uploads to Google Drive via the multipart upload API.
//
// Config keys: access_token, folder_id (optional).
type GoogleDriveHandler struct {
	client    *http.Client
	UploadURL string
	AboutURL  string
}

// NewGoogleDriveHandler creates a Drive handler using the given HTTP
// client.
func NewGoogleDriveHandler(client *http.Client) *GoogleDriveHandler {
	return &GoogleDriveHandler{
		client:    client,
		UploadURL: "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart",
		AboutURL:  "https://www.googleapis.com/drive/v3/about?fields=user",
	}
}

// Upload sends the file with its metadata part naming the target folder.
func (h *GoogleDriveHandler) Upload(ctx context.Context, filePath string, target *domain.Target, _ Metadata) error {
	token := target.Config["access_token"]
	if token == "" {
		return fmt.Errorf("google drive target is missing access_token")
	}

	fileMeta := map[string]any{"name": filepath.Base(filePath)}
	if folder := target.Config["folder_id"]; folder != "" {
		fileMeta["parents"] = []string{folder}
	}
	metaJSON, err := json.Marshal(fileMeta)
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

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return err
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return err
	}

	filePart, err := createFilePart(writer, "file", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(filePart, file); err != nil {
		return fmt.Errorf("failed to stage artifact: %w", err)
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.UploadURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("google drive upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus("google drive upload", resp)
}

// Probe verifies the token against the Drive about endpoint.
func (h *GoogleDriveHandler) Probe(ctx context.Context, target *domain.Target) error {
	return bearerProbe(ctx, h.client, http.MethodGet, h.AboutURL, target.Config["access_token"], "google drive")
}

// DropboxHandler uploads via the Dropbox content API.
//
// Config keys: access_token, path (optional, default /scans).
type DropboxHandler struct {
	client     *http.Client
	UploadURL  string
	AccountURL string
}

// NewDropboxHandler creates a Dropbox handler using the given HTTP client.
func NewDropboxHandler(client *http.Client) *DropboxHandler {
	return &DropboxHandler{
		client:     client,
		UploadURL:  "https://content.dropboxapi.com/2/files/upload",
		AccountURL: "https://api.dropboxapi.com/2/users/get_current_account",
	}
}

// Upload streams the file with the destination path in Dropbox-API-Arg.
func (h *DropboxHandler) Upload(ctx context.Context, filePath string, target *domain.Target, _ Metadata) error {
	token := target.Config["access_token"]
	if token == "" {
		return fmt.Errorf("dropbox target is missing access_token")
	}
	dir := target.Config["path"]
	if dir == "" {
		dir = "/scans"
	}
	arg, err := json.Marshal(map[string]any{
		"path":       strings.TrimRight(dir, "/") + "/" + filepath.Base(filePath),
		"mode":       "add",
		"autorename": true,
		"mute":       false,
	})
	if err != nil {
		return err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = file.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.UploadURL, file)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("dropbox upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus("dropbox upload", resp)
}

// Probe verifies the token against the current-account endpoint.
func (h *DropboxHandler) Probe(ctx context.Context, target *domain.Target) error {
	return bearerProbe(ctx, h.client, http.MethodPost, h.AccountURL, target.Config["access_token"], "dropbox")
}

// OneDriveHandler uploads via the Microsoft Graph simple upload API.
//
// Config keys: access_token, path (optional, default /Scans).
type OneDriveHandler struct {
	client  *http.Client
	BaseURL string
}

// NewOneDriveHandler creates a OneDrive handler using the given HTTP
// client.
func NewOneDriveHandler(client *http.Client) *OneDriveHandler {
	return &OneDriveHandler{
		client:  client,
		BaseURL: "https://graph.microsoft.com/v1.0",
	}
}

// Upload PUTs the file content at its drive path.
func (h *OneDriveHandler) Upload(ctx context.Context, filePath string, target *domain.Target, _ Metadata) error {
	token := target.Config["access_token"]
	if token == "" {
		return fmt.Errorf("onedrive target is missing access_token")
	}
	dir := target.Config["path"]
	if dir == "" {
		dir = "/Scans"
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = file.Close() }()

	url := fmt.Sprintf("%s/me/drive/root:%s/%s:/content", h.BaseURL, dir, filepath.Base(filePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("onedrive upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus("onedrive upload", resp)
}

// Probe verifies the token against the drive root.
func (h *OneDriveHandler) Probe(ctx context.Context, target *domain.Target) error {
	return bearerProbe(ctx, h.client, http.MethodGet, h.BaseURL+"/me/drive/root", target.Config["access_token"], "onedrive")
}

// NextcloudHandler uploads via the Nextcloud/ownCloud WebDAV endpoint.
//
// Config keys: url, username, password, path (optional, default /Scans).
type NextcloudHandler struct {
	client *http.Client
}

// NewNextcloudHandler creates a Nextcloud handler using the given HTTP
// client.
func NewNextcloudHandler(client *http.Client) *NextcloudHandler {
	return &NextcloudHandler{client: client}
}

func nextcloudDAVRoot(cfg map[string]string) (string, error) {
	base := strings.TrimRight(cfg["url"], "/")
	user := cfg["username"]
	if base == "" || user == "" || cfg["password"] == "" {
		return "", fmt.Errorf("nextcloud target needs url, username and password")
	}
	return base + "/remote.php/dav/files/" + user, nil
}

// Upload PUTs the file at the configured WebDAV path with basic auth.
func (h *NextcloudHandler) Upload(ctx context.Context, filePath string, target *domain.Target, _ Metadata) error {
	root, err := nextcloudDAVRoot(target.Config)
	if err != nil {
		return err
	}
	dir := target.Config["path"]
	if dir == "" {
		dir = "/Scans"
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = file.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, root+dir+"/"+filepath.Base(filePath), file)
	if err != nil {
		return err
	}
	req.SetBasicAuth(target.Config["username"], target.Config["password"])

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("nextcloud upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus("nextcloud upload", resp)
}

// Probe issues a depth-0 PROPFIND against the user's WebDAV root.
func (h *NextcloudHandler) Probe(ctx context.Context, target *domain.Target) error {
	root, err := nextcloudDAVRoot(target.Config)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", root, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(target.Config["username"], target.Config["password"])
	req.Header.Set("Depth", "0")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("nextcloud is unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusMultiStatus {
		return nil
	}
	return checkHTTPStatus("nextcloud probe", resp)
}

func bearerProbe(ctx context.Context, client *http.Client, method, url, token, name string) error {
	if token == "" {
		return fmt.Errorf("%s target is missing access_token", name)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s is unreachable: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return checkHTTPStatus(name+" probe", resp)
}
