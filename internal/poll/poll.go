// Package poll turns "check until ready" loops into a single call with a fixed
// interval and an overall deadline.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrTimeout is returned when the deadline passes before the condition holds.
var ErrTimeout = errors.New("poll: deadline exceeded")

// Policy is a fixed-interval retry schedule bounded by Timeout.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Until calls fn immediately and then every p.Interval until fn reports done,
// returns an error, ctx ends, or p.Timeout elapses. The last wait is shortened
// so one final attempt lands on the deadline.
//
// fn receives a context that also expires after p.Timeout, so an attempt that
// hangs cannot outlive the policy; that case is reported as ErrTimeout.
func Until[T any](ctx context.Context, clock clockwork.Clock, p Policy, fn func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	deadline := clock.Now().Add(p.Timeout)

	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	for {
		v, done, err := fn(attemptCtx)
		if err != nil {
			if ctx.Err() == nil && attemptCtx.Err() != nil {
				return zero, ErrTimeout
			}
			return zero, err
		}
		if done {
			return v, nil
		}

		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			return zero, ErrTimeout
		}

		select {
		case <-attemptCtx.Done():
			if ctx.Err() == nil {
				return zero, ErrTimeout
			}
			return zero, ctx.Err()
		case <-clock.After(min(p.Interval, remaining)):
		}
	}
}
