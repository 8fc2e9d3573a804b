package reliability

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides how long to wait before the next attempt
type RetryPolicy interface {
	// Backoff is called after the failed attempt number failures (from 1).
	// It returns false to give up.
	Backoff(failures int) (time.Duration, bool)
}

// ExponentialBackoff multiplies the wait after every failure, capped at
// MaxInterval. MaxAttempts bounds the retries; zero or less never gives up.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates a jittered exponential policy
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
		Jitter:          true,
	}
}

// Backoff implements RetryPolicy
func (e *ExponentialBackoff) Backoff(failures int) (time.Duration, bool) {
	if exhausted(failures, e.MaxAttempts) {
		return 0, false
	}

	wait := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(failures-1))
	if e.MaxInterval > 0 {
		wait = math.Min(wait, float64(e.MaxInterval))
	}
	if e.Jitter {
		// spread reconnects by up to 15% either way
		wait *= 0.85 + 0.3*rand.Float64()
	}
	return time.Duration(wait), true
}

// FixedDelay waits the same Delay after every failure
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a constant delay policy
func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxAttempts: maxAttempts}
}

// Backoff implements RetryPolicy
func (f *FixedDelay) Backoff(failures int) (time.Duration, bool) {
	if exhausted(failures, f.MaxAttempts) {
		return 0, false
	}
	return f.Delay, true
}

func exhausted(failures, maxAttempts int) bool {
	return maxAttempts > 0 && failures > maxAttempts
}

// Retry calls op until it succeeds, returns a Permanent error, the policy
// gives up or ctx ends. notify, when set, runs before every wait. The last
// error is returned; a bare Permanent mark is removed.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error, notify func(failures int, err error, wait time.Duration)) error {
	for failures := 1; ; failures++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var p *permanentError
		if errors.As(err, &p) {
			if err == error(p) {
				return p.err
			}
			return err
		}

		wait, ok := policy.Backoff(failures)
		if !ok {
			return err
		}
		if notify != nil {
			notify(failures, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
