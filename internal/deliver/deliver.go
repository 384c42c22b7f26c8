// Package deliver pushes completed artifacts to configured targets. Every
// protocol lives behind one Handler interface so the retry/backoff policy is
// written exactly once.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scan2target/scan2target/internal/domain"
)

// Configuration errors are fatal and immediate: retrying cannot fix a
// missing or disabled target.
var (
	// ErrConfiguration marks all non-retryable target configuration errors.
	ErrConfiguration = errors.New("target configuration error")

	// ErrTargetDisabled is returned when the target exists but is disabled.
	ErrTargetDisabled = fmt.Errorf("%w: target is disabled", ErrConfiguration)

	// ErrUnsupportedType is returned when no handler exists for the
	// target's protocol type.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported protocol type", ErrConfiguration)
)

// Metadata carries job fields attached to a delivery (webhook form fields,
// document titles). At minimum it holds job_id.
type Metadata map[string]string

// Handler transfers one file to one protocol's destination. Implementations
// build the destination path from the target configuration plus the
// filename, perform the transfer and return a descriptive error on failure.
type Handler interface {
	Upload(ctx context.Context, filePath string, target *domain.Target, meta Metadata) error
}

// Prober performs a lightweight connectivity check that must not do a full
// transfer where a cheaper check exists.
type Prober interface {
	Probe(ctx context.Context, target *domain.Target) error
}

// TargetSource is the read capability consumed from the target
// configuration layer.
type TargetSource interface {
	GetTarget(ctx context.Context, id string) (*domain.Target, error)
}

// Result is the outcome of a connectivity test, shaped for direct display.
type Result struct {
	Status  string `json:"status"` // "ok" or "error"
	Message string `json:"message,omitempty"`
}

// Manager routes deliveries to protocol handlers and wraps them in a
// bounded retry with exponential backoff.
type Manager struct {
	targets    TargetSource
	handlers   map[domain.TargetType]Handler
	maxRetries int
	logger     *slog.Logger

	// sleep is injectable for tests; production uses a ctx-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a Manager with the given handler set. maxRetries
// bounds the attempts per delivery (default 3).
func NewManager(targets TargetSource, handlers map[domain.TargetType]Handler, maxRetries int, logger *slog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Manager{
		targets:    targets,
		handlers:   handlers,
		maxRetries: maxRetries,
		logger:     logger.With("component", "delivery"),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Deliver pushes the file to the target, retrying transient failures up to
// maxRetries times with delays of 1s, 2s, 4s, … between attempts. It returns
// nil on success, a configuration error immediately for disabled/missing/
// unsupported targets, and an aggregate error naming the target once
// retries are exhausted.
func (m *Manager) Deliver(ctx context.Context, targetID string, filePath string, meta Metadata) error {
	target, err := m.targets.GetTarget(ctx, targetID)
	if err != nil {
		return fmt.Errorf("%w: target %q: %v", ErrConfiguration, targetID, err)
	}
	if !target.Enabled {
		return fmt.Errorf("%w: %q", ErrTargetDisabled, target.Name)
	}
	handler, ok := m.handlers[target.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, target.Type)
	}

	logger := m.logger.With("target", target.Name, "type", target.Type, "file", filePath)

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		lastErr = handler.Upload(ctx, filePath, target, meta)
		if lastErr == nil {
			logger.Info("delivery succeeded", "attempt", attempt)
			return nil
		}
		logger.Warn("delivery attempt failed", "attempt", attempt, "error", lastErr)

		if attempt < m.maxRetries {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			if err := m.sleep(ctx, delay); err != nil {
				return fmt.Errorf("delivery to target %q interrupted: %w", target.Name, err)
			}
		}
	}
	return fmt.Errorf("delivery to target %q failed after %d attempts: %w", target.Name, m.maxRetries, lastErr)
}

// Test probes the configured target's connectivity without transferring a
// real artifact.
func (m *Manager) Test(ctx context.Context, targetID string) Result {
	target, err := m.targets.GetTarget(ctx, targetID)
	if err != nil {
		return Result{Status: "error", Message: fmt.Sprintf("target %q: %v", targetID, err)}
	}
	return m.Validate(ctx, target)
}

// Validate probes a target configuration that may not be persisted yet,
// used to reject bad configuration before saving it. An unsaved
// configuration has no id, so only the protocol type and its probe are
// checked.
func (m *Manager) Validate(ctx context.Context, target *domain.Target) Result {
	if !target.Type.Valid() {
		return Result{Status: "error", Message: fmt.Sprintf("unsupported protocol type %q", target.Type)}
	}
	handler, ok := m.handlers[target.Type]
	if !ok {
		return Result{Status: "error", Message: fmt.Sprintf("unsupported protocol type %q", target.Type)}
	}
	prober, ok := handler.(Prober)
	if !ok {
		return Result{Status: "error", Message: fmt.Sprintf("protocol %q has no connectivity probe", target.Type)}
	}
	if err := prober.Probe(ctx, target); err != nil {
		return Result{Status: "error", Message: err.Error()}
	}
	return Result{Status: "ok"}
}
