package workflow

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy is a bounded, jittered exponential-backoff retry budget. It is
// attached per step rather than baked into any particular job runner, so the
// exactly-once-per-request guarantee does not depend on an orchestration
// platform's retry semantics.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff cap
}

// Do runs fn up to p.MaxAttempts times, sleeping a jittered, doubling delay
// between attempts. Only errors for which retryable returns true are retried;
// everything else is returned immediately. Context cancellation aborts the
// wait and returns ctx.Err().
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(delay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
