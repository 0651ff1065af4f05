// Package retry runs an operation again with jittered exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Options configures Do.
type Options struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// InitialBackoff is the base wait after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps any single wait.
	MaxBackoff time.Duration
}

// DefaultOptions suits quick calls to a local or nearby store.
var DefaultOptions = Options{
	MaxAttempts:    4,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// permanentError stops Do from retrying.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. The last error from op is returned.
func Do(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(attempt, opts.InitialBackoff, opts.MaxBackoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// Backoff returns base*2^attempt plus up to the same again in jitter, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	backoff := base * time.Duration(1<<uint(attempt))
	if max > 0 && backoff > max {
		return max
	}
	backoff += time.Duration(rand.Int64N(int64(backoff)))
	if max > 0 && backoff > max {
		backoff = max
	}
	return backoff
}
