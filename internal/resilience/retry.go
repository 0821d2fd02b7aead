package resilience

import (
	"context"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the wait after failed attempt n (0-based):
// BaseDelay * 2^n, capped at MaxDelay.
func (p Policy) Backoff(n int) time.Duration {
	d := p.BaseDelay
	for range n {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type retryPhase int

const (
	phaseAttempt retryPhase = iota
	phaseWait
	phaseDone
)

// Retrier runs an operation under a Policy. An attempt's error is retried only
// when Retryable returns true for it.
type Retrier struct {
	Policy    Policy
	Retryable func(error) bool
	Sleep     Sleeper
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. It returns the last error and the number of attempts
// op was called.
func (r Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	maxAttempts := max(r.Policy.MaxAttempts, 1)

	var (
		phase    = phaseAttempt
		attempts int
		lastErr  error
	)
	for phase != phaseDone {
		switch phase {
		case phaseAttempt:
			lastErr = op(ctx, attempts)
			attempts++
			switch {
			case lastErr == nil:
				phase = phaseDone
			case r.Retryable != nil && !r.Retryable(lastErr):
				phase = phaseDone
			case attempts >= maxAttempts:
				phase = phaseDone
			default:
				phase = phaseWait
			}
		case phaseWait:
			if err := sleep(ctx, r.Policy.Backoff(attempts-1)); err != nil {
				return attempts, lastErr
			}
			phase = phaseAttempt
		}
	}
	return attempts, lastErr
}
