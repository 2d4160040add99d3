// Package retry is the single backoff implementation shared by every
// outbound API call in the pipeline. Callers parameterize the attempt cap
// and the retryable-error predicate; non-retryable errors abort immediately
// without consuming remaining attempts.
package retry

import (
	"context"
	"time"
)

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable reports whether the error is transient. A nil predicate
	// treats every error as retryable.
	Retryable func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     8 * time.Second,
	}
}

// Stats reports what Do actually did, so callers can surface attempt counts
// in run metadata instead of guessing from logs.
type Stats struct {
	Attempts  int
	LastDelay time.Duration
}

// Do runs fn until it succeeds, the attempt cap is reached, the error is
// classified non-retryable, or the context is cancelled. The returned error
// is the last error from fn (or ctx.Err() when cancelled mid-backoff).
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (Stats, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}

	stats := Stats{}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		stats.Attempts = attempt
		lastErr = fn(ctx)
		if lastErr == nil {
			return stats, nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return stats, lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := p.delayFor(attempt)
		stats.LastDelay = delay
		if err := sleepCtx(ctx, delay); err != nil {
			return stats, err
		}
	}
	return stats, lastErr
}

func (p Policy) delayFor(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
