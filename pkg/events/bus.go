package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Listener receives events from the bus. A returned error is logged and
// swallowed; it never reaches the publisher or later listeners.
type Listener interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, ev Event) error

// HandleEvent implements Listener.
func (f ListenerFunc) HandleEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Bus dispatches events sequentially to listeners in subscription order.
// A single mutex serialises publishes so subscribers observe the global
// publish order even when background tasks publish concurrently.
type Bus struct {
	mu        sync.Mutex
	listeners []Listener
	logger    *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("component", "eventbus")}
}

// Subscribe registers a listener. Listeners cannot be removed; the bus
// lives exactly as long as the process.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish delivers the event to every listener, isolating failures. It
// returns once all listeners have run.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		b.deliver(ctx, i, l, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, idx int, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panicked",
				"listener", idx, "event", ev.Name, "panic", fmt.Sprint(r))
		}
	}()

	if err := l.HandleEvent(ctx, ev); err != nil {
		b.logger.Warn("Event listener failed",
			"listener", idx, "event", ev.Name, "run_id", ev.RunID, "error", err)
	}
}
