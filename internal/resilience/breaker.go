// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the externally visible breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureFilter sets the predicate deciding which errors count toward
// opening the circuit. Errors it rejects are returned to the caller but
// reset nothing and count nothing.
func WithFailureFilter(f func(error) bool) Option {
	return func(b *Breaker) { b.isFailure = f }
}

// WithStateHook registers a callback invoked (outside the lock) after every
// state transition.
func WithStateHook(f func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = f }
}

// Breaker opens after maxFailures consecutive failures and rejects calls
// until timeout elapses. It then admits a single probe call: success closes
// the circuit, failure reopens it.
type Breaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	isFailure   func(error) bool
	onChange    func(name string, from, to State)
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a named circuit breaker.
func NewBreaker(name string, maxFailures int, timeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		isFailure:   func(err error) bool { return err != nil },
		now:         time.Now,
		state:       StateClosed,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State reports the current state, promoting open to half-open when the
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs fn unless the circuit is open. Returns ErrCircuitOpen when
// the call is rejected, otherwise fn's error.
func (b *Breaker) Execute(fn func() error) error {
	wasProbe, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err, wasProbe)
	return err
}

func (b *Breaker) admit() (probe, ok bool) {
	b.mu.Lock()
	var from, to State
	defer func() {
		b.mu.Unlock()
		b.notify(from, to)
	}()

	switch b.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return false, false
		}
		from, to = b.state, StateHalfOpen
		b.state = StateHalfOpen
		b.probing = true
		return true, true
	default: // half-open: only one probe in flight
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	}
}

func (b *Breaker) record(err error, probe bool) {
	b.mu.Lock()
	from := b.state
	if probe {
		b.probing = false
	}

	switch {
	case err != nil && b.isFailure(err):
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case err == nil || probe:
		b.failures = 0
		b.state = StateClosed
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil && from != to {
		b.onChange(b.name, from, to)
	}
}
