package ai

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket shared by the remote providers. Tokens
// accrue lazily from elapsed time, so there is no background goroutine to
// manage.
type rateLimiter struct {
	last   time.Time
	tokens float64
	burst  float64
	perSec float64
	mu     sync.Mutex
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		last:   time.Now(),
		tokens: float64(requestsPerMinute),
		burst:  float64(requestsPerMinute),
		perSec: float64(requestsPerMinute) / 60.0,
	}
}

// wait blocks until a token is available or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		ok, retry := rl.take()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-time.After(retry):
		}
	}
}

// take consumes a token if one is available, otherwise reports how long
// until the next token accrues.
func (rl *rateLimiter) take() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.perSec
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.last = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true, 0
	}
	return false, time.Duration((1 - rl.tokens) / rl.perSec * float64(time.Second))
}
