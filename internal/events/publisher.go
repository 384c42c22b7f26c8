package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryPublisher dispatches job events to registered handlers in process.
// Handler failures are logged and do not stop dispatch to the remaining
// handlers; the first error is returned for observability only.
type InMemoryPublisher struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewInMemoryPublisher creates a publisher with no handlers registered.
func NewInMemoryPublisher(logger *slog.Logger) *InMemoryPublisher {
	return &InMemoryPublisher{
		logger: logger.With("component", "event_publisher"),
	}
}

// RegisterHandler adds a handler to receive all subsequent events.
func (p *InMemoryPublisher) RegisterHandler(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
	p.logger.Debug("registered event handler", "handler_count", len(p.handlers))
}

// Publish sends the event to every registered handler.
func (p *InMemoryPublisher) Publish(ctx context.Context, event JobEvent) error {
	p.mu.RLock()
	handlers := make([]Handler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			p.logger.Error("event handler failed",
				"error", err,
				"handler_index", i,
				"job_id", event.JobID,
				"status", event.Status)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
