// Package backoff provides the retry policy shared by the Figma client and
// the download manager: bounded attempts, exponential delay, and support for
// server-provided retry hints.
package backoff

import (
	"context"
	"errors"
	"time"
)

// Permanent wraps an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Stop marks err as permanent so Do returns it without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// Policy describes a bounded exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default matches the recommended ceiling of 3 attempts.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Attempt is one unit of retryable work. A non-zero retryAfter is a
// server-provided hint that takes precedence over the computed delay.
type Attempt func(attempt int) (retryAfter time.Duration, err error)

// Do runs fn up to MaxAttempts times, sleeping between failures. It returns
// nil on the first success, the unwrapped error as soon as fn reports a
// permanent failure, and the last error once attempts are exhausted.
// Cancellation of ctx aborts the wait between attempts.
func (p Policy) Do(ctx context.Context, fn Attempt) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		retryAfter, err := fn(attempt)
		if err == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := p.delay(attempt)
		if retryAfter > 0 {
			delay = retryAfter
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
