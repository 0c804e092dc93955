package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrRateLimit indicates that a provider rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// Backoff shapes the retry schedule for WithRetry. Zero values take the
// defaults: 3 attempts starting at 100ms, doubling up to 30s.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
}

func (b Backoff) normalized() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = 100 * time.Millisecond
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 30 * time.Second
	}
	if b.Factor <= 0 {
		b.Factor = 2.0
	}
	return b
}

// next returns the delay following d, capped at MaxDelay.
func (b Backoff) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * b.Factor)
	if d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// WithRetry runs op until it succeeds, fails permanently, or the schedule
// is exhausted. A RetryableError marked non-retryable stops immediately;
// a rate-limit error waits the full MaxDelay before the next attempt.
func WithRetry(ctx context.Context, op func() error, b Backoff) error {
	b = b.normalized()

	delay := b.BaseDelay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		var permanent *RetryableError
		if errors.As(err, &permanent) && !permanent.Retryable {
			return err
		}
		if attempt == b.Attempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, b.Attempts, err)
		}

		wait := delay
		if errors.Is(err, ErrRateLimit) {
			wait = b.MaxDelay
		}
		slog.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", b.Attempts,
			"delay", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay = b.next(delay)
	}
}
