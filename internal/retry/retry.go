// Package retry runs operations with bounded exponential backoff. Only
// transient failures are retried; authentication, not-found and local
// state errors are returned immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	dserrors "github.com/systmms/dfops/internal/errors"
	"github.com/systmms/dfops/internal/logging"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts     int           // total attempts including the first; <=0 means 3
	InitialInterval time.Duration // <=0 means 500ms
	MaxInterval     time.Duration // <=0 means 10s
}

// DefaultPolicy is used when callers pass the zero Policy.
var DefaultPolicy = Policy{MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0 // bounded by attempts and ctx
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, logger *logging.Logger, name string, op func(ctx context.Context) error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !dserrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if logger != nil {
			logger.Warn("%s failed (attempt %d), retrying in %s: %v", name, attempt, wait.Round(time.Millisecond), err)
		}
	}

	return backoff.RetryNotify(wrapped, p.backOff(ctx), notify)
}
