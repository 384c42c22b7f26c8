package domain

import "time"

// Device is a registered capture or print peripheral. Discovery and CRUD are
// owned by the device layer; the core reads the registry and the health
// monitor maintains LastSeen.
type Device struct {
	ID        string     `json:"id"`
	Type      string     `json:"device_type"` // "scanner" or "printer"
	Name      string     `json:"name"`
	URI       string     `json:"uri"`
	Active    bool       `json:"is_active"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DeviceHealth is a transient reachability entry. It lives only in the health
// monitor's cache, is rebuilt on every polling interval and is lost on
// restart; it is advisory, not authoritative.
type DeviceHealth struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	Online    bool      `json:"online"`
	LastCheck time.Time `json:"last_check"`
}
