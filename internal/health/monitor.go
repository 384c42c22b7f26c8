// Package health maintains an advisory reachability cache for registered
// devices. The cache is rebuilt every polling interval and lost on restart;
// job submission never consults it.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/store"
)

// DeviceLister enumerates the URIs of currently reachable devices.
type DeviceLister interface {
	ListReachable(ctx context.Context) ([]string, error)
}

// Monitor polls device reachability on a fixed interval and serves the
// latest snapshot from memory.
type Monitor struct {
	devices  store.DeviceStore
	lister   DeviceLister
	interval time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.DeviceHealth

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates a Monitor polling at the given interval (default 60s).
func NewMonitor(devices store.DeviceStore, lister DeviceLister, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Monitor{
		devices:  devices,
		lister:   lister,
		interval: interval,
		logger:   logger.With("component", "health"),
		cache:    make(map[string]domain.DeviceHealth),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop. It performs an immediate check so the
// cache is populated before the first interval elapses.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		m.CheckNow(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.CheckNow(ctx)
			}
		}
	}()
}

// Stop terminates the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}

// CheckNow performs one reachability sweep. A failed sweep keeps the
// previous snapshot; the next tick tries again.
func (m *Monitor) CheckNow(ctx context.Context) {
	devices, err := m.devices.ListDevices(ctx, "scanner")
	if err != nil {
		m.logger.Error("device registry unavailable, keeping previous snapshot", "error", err)
		return
	}

	reachable := make(map[string]bool)
	uris, err := m.lister.ListReachable(ctx)
	if err != nil {
		m.logger.Error("reachability probe failed, keeping previous snapshot", "error", err)
		return
	}
	for _, uri := range uris {
		reachable[uri] = true
	}

	now := time.Now().UTC()
	next := make(map[string]domain.DeviceHealth, len(devices))

	m.mu.RLock()
	previous := m.cache
	m.mu.RUnlock()

	for _, device := range devices {
		online := reachable[device.URI]
		next[device.URI] = domain.DeviceHealth{
			URI:       device.URI,
			Name:      device.Name,
			Online:    online,
			LastCheck: now,
		}

		prev, known := previous[device.URI]
		if known && prev.Online == online {
			continue
		}
		if online {
			m.logger.Info("device came online", "device", device.Name, "uri", device.URI)
			if err := m.devices.UpdateLastSeen(ctx, device.ID); err != nil {
				m.logger.Warn("failed to stamp last_seen", "device", device.Name, "error", err)
			}
		} else if known {
			m.logger.Warn("device went offline", "device", device.Name, "uri", device.URI)
		} else {
			m.logger.Info("device is offline", "device", device.Name, "uri", device.URI)
		}
	}

	m.mu.Lock()
	m.cache = next
	m.mu.Unlock()
}

// Snapshot returns the current health entries, one per registered device.
func (m *Monitor) Snapshot() []domain.DeviceHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DeviceHealth, 0, len(m.cache))
	for _, entry := range m.cache {
		out = append(out, entry)
	}
	return out
}

// Get returns the health entry for one device URI.
func (m *Monitor) Get(uri string) (domain.DeviceHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.cache[uri]
	return entry, ok
}
