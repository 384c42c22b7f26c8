// Package capture drives physical capture operations for a job: the page
// loop with its feeder-termination heuristics, format conversion, thumbnail
// generation and the handoff to delivery.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/scan2target/scan2target/internal/domain"
)

// ErrBatchUnsupported is returned by CaptureBatch when the device has no
// native batch facility; the pipeline falls back to the manual page loop.
var ErrBatchUnsupported = errors.New("device does not support native batch capture")

// FeederEmptyError is the recognized "no more pages" condition. Device
// adapters translate their vendor-specific error messages into this type in
// exactly one place, so the pipeline branches on a closed set instead of
// matching substrings.
type FeederEmptyError struct {
	Reason string
}

func (e *FeederEmptyError) Error() string {
	return fmt.Sprintf("document feeder empty: %s", e.Reason)
}

// IsFeederEmpty reports whether err is the recognized end-of-batch condition.
func IsFeederEmpty(err error) bool {
	var fe *FeederEmptyError
	return errors.As(err, &fe)
}

// Device is the capability the pipeline consumes from the device layer.
// Discovery and registration are out of scope; the pipeline only captures
// from a given device URI.
type Device interface {
	// CapturePage performs a single page capture into destDir and returns
	// the path of the raw page file. A *FeederEmptyError signals normal
	// end-of-batch; any other error is fatal for the job.
	CapturePage(ctx context.Context, uri string, profile domain.CaptureProfile, destDir string, page int) (string, error)

	// CaptureBatch invokes the device's native batch facility, producing a
	// numbered sequence of page files in destDir. Returns
	// ErrBatchUnsupported when the device has none.
	CaptureBatch(ctx context.Context, uri string, profile domain.CaptureProfile, destDir string) ([]string, error)

	// ListReachable enumerates the URIs of currently reachable devices.
	ListReachable(ctx context.Context) ([]string, error)
}

// Converter assembles raw page files into the requested output format and
// renders preview thumbnails.
type Converter interface {
	// Combine converts the given pages into a single artifact at dest.
	Combine(ctx context.Context, pages []string, format string, dest string) error

	// Thumbnail renders a small preview of the page at dest.
	Thumbnail(ctx context.Context, page string, dest string) error
}

// ProfileSource resolves capture profile ids. Profile CRUD is owned by the
// configuration layer.
type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (domain.CaptureProfile, error)
}

// StaticProfiles is a fixed in-memory ProfileSource seeded from
// configuration.
type StaticProfiles struct {
	profiles map[string]domain.CaptureProfile
}

// NewStaticProfiles builds a ProfileSource from the given profiles.
func NewStaticProfiles(profiles ...domain.CaptureProfile) *StaticProfiles {
	m := make(map[string]domain.CaptureProfile, len(profiles))
	for _, p := range profiles {
		m[p.ID] = p
	}
	return &StaticProfiles{profiles: m}
}

// ErrProfileNotFound is returned for unknown profile ids; callers fall back
// to the baseline profile.
var ErrProfileNotFound = errors.New("capture profile not found")

// GetProfile returns the profile with the given id.
func (s *StaticProfiles) GetProfile(_ context.Context, id string) (domain.CaptureProfile, error) {
	if p, ok := s.profiles[id]; ok {
		return p, nil
	}
	return domain.CaptureProfile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
}
