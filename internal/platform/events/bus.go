// Package events provides an in-process bus for status-change events.
// Listeners run on a background goroutine so transition requests never block
// on downstream consumers.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hospitalos/hms/internal/lifecycle"
)

// Listener consumes status-change events. A failing listener is logged and
// skipped; it never fails the transition that produced the event.
type Listener interface {
	Name() string
	Handle(ctx context.Context, evt lifecycle.Event) error
}

// Bus fans status-change events out to registered listeners.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	ch        chan lifecycle.Event
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

func NewBus(logger zerolog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		ch:     make(chan lifecycle.Event, buffer),
		logger: logger,
	}
}

// Subscribe registers a listener. Call before Start.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish enqueues an event for delivery. If the buffer is full the event is
// dropped with a warning rather than stalling the caller.
func (b *Bus) Publish(evt lifecycle.Event) {
	select {
	case b.ch <- evt:
	default:
		b.logger.Warn().
			Str("entity_type", evt.EntityType).
			Str("entity_id", evt.EntityID.String()).
			Msg("event buffer full, dropping event")
	}
}

// Start begins delivering events until ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-b.ch:
				b.dispatch(ctx, evt)
			}
		}
	}()
}

// Wait blocks until the delivery goroutine has stopped.
func (b *Bus) Wait() {
	b.wg.Wait()
}

func (b *Bus) dispatch(ctx context.Context, evt lifecycle.Event) {
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()

	for _, l := range listeners {
		if err := l.Handle(ctx, evt); err != nil {
			b.logger.Error().
				Err(err).
				Str("listener", l.Name()).
				Str("entity_type", evt.EntityType).
				Str("entity_id", evt.EntityID.String()).
				Str("to_status", evt.ToStatus).
				Msg("event listener failed")
		}
	}
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc struct {
	ListenerName string
	Fn           func(ctx context.Context, evt lifecycle.Event) error
}

func (f ListenerFunc) Name() string { return f.ListenerName }

func (f ListenerFunc) Handle(ctx context.Context, evt lifecycle.Event) error {
	return f.Fn(ctx, evt)
}
