package deliver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan2target/scan2target/internal/domain"
)

type fakeTargets struct {
	targets map[string]*domain.Target
}

func (f *fakeTargets) GetTarget(_ context.Context, id string) (*domain.Target, error) {
	if t, ok := f.targets[id]; ok {
		return t, nil
	}
	return nil, errors.New("not found")
}

type fakeHandler struct {
	failures int // fail this many attempts before succeeding
	calls    int
	probeErr error
}

func (h *fakeHandler) Upload(context.Context, string, *domain.Target, Metadata) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("connection refused")
	}
	return nil
}

func (h *fakeHandler) Probe(context.Context, *domain.Target) error {
	return h.probeErr
}

func testTarget(enabled bool) *domain.Target {
	return &domain.Target{
		ID:      "tgt-1",
		Name:    "nas",
		Type:    domain.TargetSMB,
		Config:  map[string]string{"connection": "//nas/scans"},
		Enabled: enabled,
	}
}

func newTestManager(target *domain.Target, handler Handler) (*Manager, *[]time.Duration) {
	targets := &fakeTargets{targets: map[string]*domain.Target{}}
	if target != nil {
		targets.targets[target.ID] = target
	}
	m := NewManager(targets, map[domain.TargetType]Handler{domain.TargetSMB: handler},
		3, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var slept []time.Duration
	m.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return m, &slept
}

func TestManagerDeliverRetries(t *testing.T) {
	t.Run("success on first attempt sleeps never", func(t *testing.T) {
		handler := &fakeHandler{}
		m, slept := newTestManager(testTarget(true), handler)

		require.NoError(t, m.Deliver(context.Background(), "tgt-1", "/tmp/a.pdf", nil))
		assert.Equal(t, 1, handler.calls)
		assert.Empty(t, *slept)
	})

	t.Run("transient failures back off 1s then 2s", func(t *testing.T) {
		handler := &fakeHandler{failures: 2}
		m, slept := newTestManager(testTarget(true), handler)

		require.NoError(t, m.Deliver(context.Background(), "tgt-1", "/tmp/a.pdf", nil))
		assert.Equal(t, 3, handler.calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	})

	t.Run("exhaustion stops after three attempts", func(t *testing.T) {
		handler := &fakeHandler{failures: 10}
		m, slept := newTestManager(testTarget(true), handler)

		err := m.Deliver(context.Background(), "tgt-1", "/tmp/a.pdf", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `delivery to target "nas" failed after 3 attempts`)
		assert.Equal(t, 3, handler.calls, "no fourth attempt")
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept,
			"no sleep after the final attempt")
		assert.NotErrorIs(t, err, ErrConfiguration)
	})

	t.Run("cancellation during backoff stops the retry loop", func(t *testing.T) {
		handler := &fakeHandler{failures: 10}
		m, _ := newTestManager(testTarget(true), handler)
		m.sleep = func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		}

		err := m.Deliver(context.Background(), "tgt-1", "/tmp/a.pdf", nil)
		require.Error(t, err)
		assert.Equal(t, 1, handler.calls)
	})
}

func TestManagerDeliverConfigurationErrors(t *testing.T) {
	t.Run("disabled target fails immediately", func(t *testing.T) {
		handler := &fakeHandler{}
		m, slept := newTestManager(testTarget(false), handler)

		err := m.Deliver(context.Background(), "tgt-1", "/tmp/a.pdf", nil)
		assert.ErrorIs(t, err, ErrTargetDisabled)
		assert.ErrorIs(t, err, ErrConfiguration)
		assert.Zero(t, handler.calls, "no upload attempt for a disabled target")
		assert.Empty(t, *slept)
	})

	t.Run("missing target fails immediately", func(t *testing.T) {
		m, _ := newTestManager(nil, &fakeHandler{})
		err := m.Deliver(context.Background(), "ghost", "/tmp/a.pdf", nil)
		assert.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("unsupported protocol fails immediately", func(t *testing.T) {
		target := testTarget(true)
		target.Type = domain.TargetSFTP // no handler registered for it
		m, _ := newTestManager(target, &fakeHandler{})

		err := m.Deliver(context.Background(), "tgt-1", "/tmp/a.pdf", nil)
		assert.ErrorIs(t, err, ErrUnsupportedType)
	})
}

func TestManagerTest(t *testing.T) {
	t.Run("reachable target reports ok", func(t *testing.T) {
		m, _ := newTestManager(testTarget(true), &fakeHandler{})
		result := m.Test(context.Background(), "tgt-1")
		assert.Equal(t, "ok", result.Status)
	})

	t.Run("probe failure reports the cause", func(t *testing.T) {
		m, _ := newTestManager(testTarget(true), &fakeHandler{probeErr: errors.New("share is not writable")})
		result := m.Test(context.Background(), "tgt-1")
		assert.Equal(t, "error", result.Status)
		assert.Contains(t, result.Message, "not writable")
	})

	t.Run("unknown target reports error", func(t *testing.T) {
		m, _ := newTestManager(nil, &fakeHandler{})
		result := m.Test(context.Background(), "ghost")
		assert.Equal(t, "error", result.Status)
	})
}

func TestManagerValidate(t *testing.T) {
	m, _ := newTestManager(nil, &fakeHandler{})

	t.Run("unsaved configuration can be probed", func(t *testing.T) {
		result := m.Validate(context.Background(), testTarget(true))
		assert.Equal(t, "ok", result.Status)
	})

	t.Run("configuration without an id can be probed", func(t *testing.T) {
		// A target that has not been saved yet carries no id.
		target := testTarget(true)
		target.ID = ""
		result := m.Validate(context.Background(), target)
		assert.Equal(t, "ok", result.Status)
		assert.Empty(t, result.Message)
	})

	t.Run("invalid type is rejected before probing", func(t *testing.T) {
		target := testTarget(true)
		target.Type = "carrier-pigeon"
		result := m.Validate(context.Background(), target)
		assert.Equal(t, "error", result.Status)
	})
}
