package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // Normal operation; requests pass through.
	Open                  // Failing; requests are rejected immediately.
	HalfOpen              // Testing recovery; one trial request allowed through.
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateChangeFunc is called, outside the breaker lock, after each transition.
type StateChangeFunc func(name string, from, to State)

// Option configures a Breaker.
type Option func(*Breaker)

// WithStateChange registers a transition callback.
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	onChange     StateChangeFunc

	mu              sync.Mutex
	state           State
	failures        int
	lastFailureTime time.Time
	trialInFlight   bool
}

// New creates a Breaker that opens after maxFailures consecutive errors
// and attempts recovery after resetTimeout.
func New(name string, maxFailures int, resetTimeout time.Duration, opts ...Option) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	b := &Breaker{
		name:         name,
		state:        Closed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the name the breaker was created with.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs fn through the circuit breaker. If the circuit is open, or a
// half-open trial is already running, ErrCircuitOpen is returned without
// calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Open:
		if time.Since(b.lastFailureTime) <= b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = HalfOpen
		b.trialInFlight = true
	case HalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.trialInFlight = true
	}
	trial := b.state == HalfOpen
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)

	err := fn()

	b.mu.Lock()
	from = b.state
	if trial {
		b.trialInFlight = false
	}
	if err != nil {
		b.failures++
		b.lastFailureTime = time.Now()
		if trial || b.failures >= b.maxFailures {
			b.state = Open
		}
	} else {
		b.failures = 0
		b.state = Closed
	}
	to = b.state
	b.mu.Unlock()
	b.notify(from, to)

	return err
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// GetState returns the current state of the breaker.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
