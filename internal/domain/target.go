package domain

import "errors"

// Target-specific validation errors
var (
	// ErrTargetIDEmpty is returned when a target ID is empty.
	ErrTargetIDEmpty = errors.New("target ID cannot be empty")

	// ErrTargetTypeInvalid is returned when a target's protocol type is not
	// one of the supported values.
	ErrTargetTypeInvalid = errors.New("target type is not supported")
)

// TargetType identifies the delivery protocol of a target.
type TargetType string

// Supported delivery protocols. The values match what the configuration
// layer persists, so they are part of the stored-data contract.
const (
	TargetSMB       TargetType = "smb"
	TargetSFTP      TargetType = "sftp"
	TargetEmail     TargetType = "email"
	TargetPaperless TargetType = "paperless"
	TargetWebhook   TargetType = "webhook"
	TargetGDrive    TargetType = "gdrive"
	TargetDropbox   TargetType = "dropbox"
	TargetOneDrive  TargetType = "onedrive"
	TargetNextcloud TargetType = "nextcloud"
)

// Valid reports whether the target type is one of the supported protocols.
func (t TargetType) Valid() bool {
	switch t {
	case TargetSMB, TargetSFTP, TargetEmail, TargetPaperless,
		TargetWebhook, TargetGDrive, TargetDropbox, TargetOneDrive, TargetNextcloud:
		return true
	}
	return false
}

// Target is a user-configured delivery destination. Persistence is owned by
// the configuration layer; the core only reads targets. Delivery is only
// attempted while Enabled is true; a disabled or missing target is a
// configuration error, never retried.
type Target struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Type    TargetType        `json:"type"`
	Config  map[string]string `json:"config"`
	Enabled bool              `json:"enabled"`
}

// Validate checks the target's identity and protocol type.
func (t *Target) Validate() error {
	if t.ID == "" {
		return ErrTargetIDEmpty
	}
	if !t.Type.Valid() {
		return ErrTargetTypeInvalid
	}
	return nil
}
