// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package host

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/plugman/internal/plugin"
)

// ErrPanic marks a module call that panicked.
var ErrPanic = errors.New("module panicked")

// guard runs foreign module code with an optional deadline and recovers its
// panics. After the deadline the caller stops waiting; fn is expected to
// observe ctx and return on its own.
func guard(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- oops.With("panic", r).Wrapf(ErrPanic, "%v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return OutcomeOK, nil
		case errors.Is(err, ErrPanic):
			return OutcomePanic, err
		case errors.Is(err, plugin.ErrHookTimeout):
			return OutcomeTimeout, err
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return OutcomeTimeout, errors.Join(plugin.ErrHookTimeout, err)
		default:
			return OutcomeError, err
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return OutcomeTimeout, errors.Join(plugin.ErrHookTimeout, ctx.Err())
		}
		return OutcomeError, ctx.Err() //nolint:wrapcheck // callers wrap with module context
	}
}
