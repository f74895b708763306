// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package reclaim releases the resources an unloaded module pinned.
package reclaim

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/pkg/errutil"
)

// Defaults for handle close retries.
const (
	DefaultAttempts = 3
	DefaultBackoff  = 50 * time.Millisecond
)

// Reclaimer severs loaders and runs coalesced reclamation passes.
type Reclaimer struct {
	attempts uint64
	backoff  time.Duration
	collect  func()

	mu      sync.Mutex
	running bool
	pending bool
	wg      sync.WaitGroup
}

// Option configures a Reclaimer.
type Option func(*Reclaimer)

// WithRetry sets how many times each handle close is attempted and the
// constant delay between attempts.
func WithRetry(attempts uint64, backoff time.Duration) Option {
	return func(r *Reclaimer) {
		if attempts > 0 {
			r.attempts = attempts
		}
		r.backoff = backoff
	}
}

// WithCollector replaces the reclamation pass. Used by tests.
func WithCollector(fn func()) Option {
	return func(r *Reclaimer) {
		r.collect = fn
	}
}

// New creates a Reclaimer.
func New(opts ...Option) *Reclaimer {
	r := &Reclaimer{
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		collect:  collect,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func collect() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Sever detaches m's loader and closes every handle it held, last acquired
// first. Close failures are retried, then logged and returned; they never
// stop the remaining handles from being closed. A second call is a no-op.
func (r *Reclaimer) Sever(ctx context.Context, m *plugin.Module) []error {
	loader := m.Loader()
	if loader == nil {
		return nil
	}

	var failures []error
	for _, h := range loader.Detach() {
		if err := r.close(ctx, h); err != nil {
			err = plugin.ReclaimFailure(m.Name(), h.Name, err)
			errutil.LogWarn(ctx, slog.Default(), "failed to release module handle", err,
				"plugin", m.Name(),
				"module_id", m.ID().String())
			failures = append(failures, err)
		}
	}
	return failures
}

func (r *Reclaimer) close(ctx context.Context, h plugin.NamedCloser) error {
	b := retry.WithMaxRetries(r.attempts-1, retry.NewConstant(max(r.backoff, time.Nanosecond)))
	// Detached contexts keep closing after a cancelled unload request.
	ctx = context.WithoutCancel(ctx)
	return retry.Do(ctx, b, func(_ context.Context) error { //nolint:wrapcheck // wrapped by caller
		if err := h.Closer.Close(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Reclaim requests a reclamation pass without blocking. While a pass runs,
// further requests coalesce into a single follow-up pass.
func (r *Reclaimer) Reclaim() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.pending = true
		return
	}
	r.running = true
	r.wg.Add(1)
	go r.loop()
}

func (r *Reclaimer) loop() {
	defer r.wg.Done()
	for {
		r.collect()

		r.mu.Lock()
		if !r.pending {
			r.running = false
			r.mu.Unlock()
			return
		}
		r.pending = false
		r.mu.Unlock()
	}
}

// Wait blocks until in-flight reclamation passes finish.
func (r *Reclaimer) Wait() {
	r.wg.Wait()
}
