// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/holomush/plugman/internal/logging"
	"github.com/holomush/plugman/internal/plugin"
)

// DefaultQueueSize is the event queue capacity used when none is configured.
const DefaultQueueSize = 256

// ListenerSource returns the modules listening for an event kind in
// delivery order. *registry.Registry implements it.
type ListenerSource interface {
	Listeners(kind string) []*plugin.Module
}

// Bus queues events and delivers them to listeners on its own goroutine.
// Publish never delivers inline, so a module emitting from inside a hook
// cannot re-enter the lifecycle manager.
type Bus struct {
	source  ListenerSource
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	queue   chan plugin.Event
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithDeliveryTimeout bounds each listener call. Zero disables the bound.
func WithDeliveryTimeout(d time.Duration) BusOption {
	return func(b *Bus) {
		b.timeout = d
	}
}

// WithBusLogger sets the logger. Defaults to slog.Default().
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates a bus with a queue of size events (DefaultQueueSize if < 1).
func NewBus(source ListenerSource, size int, opts ...BusOption) *Bus {
	if size < 1 {
		size = DefaultQueueSize
	}
	b := &Bus{
		source:  source,
		timeout: DefaultHookTimeout,
		logger:  slog.Default(),
		queue:   make(chan plugin.Event, size),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish queues an event. It returns false when the queue is full or the
// bus has stopped; the event is then dropped.
func (b *Bus) Publish(event plugin.Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		EventsDropped.Inc()
		return false
	}
	select {
	case b.queue <- event:
		return true
	default:
		EventsDropped.Inc()
		b.logger.Warn("event queue full, dropping event",
			"event_id", event.ID,
			"event_kind", event.Kind,
			"source", event.Source)
		return false
	}
}

// Start begins delivering queued events until ctx is done or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.cancel != nil {
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-b.queue:
				b.Deliver(ctx, event)
			}
		}
	}()
}

// Stop stops delivery and waits for the in-flight event to finish. Events
// still queued are dropped. Stop is idempotent.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	if n := len(b.queue); n > 0 {
		b.logger.Warn("event bus stopped with undelivered events", "count", n)
	}
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Deliver hands event to every enabled listener in priority order,
// synchronously. One listener failing does not stop delivery to the rest.
func (b *Bus) Deliver(ctx context.Context, event plugin.Event) {
	for _, m := range b.source.Listeners(event.Kind) {
		if ctx.Err() != nil {
			return
		}
		if !m.IsEnabled() {
			continue
		}
		inst := m.Instance()
		if inst == nil {
			continue
		}

		mctx := logging.WithModule(ctx, m.Name(), m.ID().String())
		outcome, err := guard(mctx, b.timeout, func(ctx context.Context) error {
			return inst.HandleEvent(ctx, event)
		})
		RecordDelivery(event.Kind, outcome)
		if err == nil {
			continue
		}

		attrs := []any{
			"plugin", m.Name(),
			"event_id", event.ID,
			"event_kind", event.Kind,
			"source", event.Source,
		}
		switch {
		case outcome == OutcomeTimeout:
			b.logger.WarnContext(ctx, "module event delivery timed out", append(attrs, "timeout", b.timeout.String())...)
		case errors.Is(err, context.Canceled):
			b.logger.DebugContext(ctx, "module event delivery canceled", attrs...)
		default:
			b.logger.ErrorContext(ctx, "failed to deliver event to module", append(attrs, "error", err)...)
		}
	}
}
