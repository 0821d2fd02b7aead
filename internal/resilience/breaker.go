// Package resilience provides reliability patterns for outbound agent calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Snapshot is a point-in-time copy of a breaker's state.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
}

// TransitionFunc observes state changes. It is called with the breaker lock held
// and must not call back into the breaker.
type TransitionFunc func(from, to State)

// Breaker implements a circuit breaker pattern for protecting agent calls.
// It tracks consecutive failures and opens the circuit when a threshold is reached,
// rejecting calls until a cool-down elapses. After the cool-down a single trial
// call is admitted; concurrent callers keep getting ErrCircuitOpen until the
// trial settles.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	trial       bool
	now         func() time.Time // for testing
	isFailure   func(error) bool
	onChange    TransitionFunc
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithFailurePredicate decides which errors count against the breaker.
// Errors for which it returns false are treated as successful calls.
func WithFailurePredicate(fn func(error) bool) BreakerOption {
	return func(b *Breaker) { b.isFailure = fn }
}

// WithTransitionHook registers fn to observe state changes.
func WithTransitionHook(fn TransitionFunc) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// NewBreaker creates a circuit breaker that opens after maxFailures consecutive
// failures and stays open for the given timeout before transitioning to half-open.
func NewBreaker(maxFailures int, timeout time.Duration, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		state:       StateClosed,
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
		isFailure:   func(err error) bool { return err != nil },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Execute runs fn if the circuit admits the call.
// Returns ErrCircuitOpen without calling fn otherwise.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isFailure(err) {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return err
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.state, ConsecutiveFailures: b.failures, OpenedAt: b.openedAt}
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.setState(StateHalfOpen)
			b.trial = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	b.trial = false
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.setState(StateOpen)
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.trial = false
	b.openedAt = time.Time{}
	b.setState(StateClosed)
}

// setState must be called with b.mu held.
func (b *Breaker) setState(s State) {
	if s == b.state {
		return
	}
	from := b.state
	b.state = s
	if b.onChange != nil {
		b.onChange(from, s)
	}
}
