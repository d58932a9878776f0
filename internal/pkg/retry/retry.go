// Package retry provides a bounded exponential-backoff retry helper. The
// default per-item error handler uses it to give a transient action failure
// a few chances before contributing to the worker's exit code.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       bool
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the maximum number of attempts (including the first).
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.maxAttempts = n }
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) { p.initialDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithJitter enables or disables jitter on the computed delay.
func WithJitter(enabled bool) Option {
	return func(p *Policy) { p.jitter = enabled }
}

// NewPolicy builds a Policy, defaulting to 3 attempts with a 100ms initial
// delay, doubling up to a 5s cap, with jitter enabled.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     5 * time.Second,
		multiplier:   2.0,
		jitter:       true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do runs fn, retrying on error up to maxAttempts times with exponential
// backoff, honoring ctx cancellation between attempts. Returns the last
// error if every attempt fails.
func (p *Policy) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == p.maxAttempts-1 {
			break
		}

		select {
		case <-time.After(p.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

func (p *Policy) delay(attempt int) time.Duration {
	d := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt))
	if d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}
	if p.jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}
