package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State is the current mode of a Breaker.
type State int

const (
	// Closed lets requests through and counts consecutive failures.
	Closed State = iota
	// Open blocks requests until the cooldown elapses.
	Open
	// HalfOpen lets trial requests through to probe recovery.
	HalfOpen
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker implements the circuit-breaker pattern around an unreliable
// downstream call. After failureThreshold consecutive failures it opens and
// fails fast; after the cooldown it half-opens and requires
// successThreshold consecutive successes to close again.
type Breaker struct {
	failureThreshold uint32
	successThreshold uint32
	cooldown         time.Duration

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openedAt  time.Time
}

// New creates a Breaker in the closed state.
func New(failureThreshold, successThreshold uint32, cooldown time.Duration) *Breaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		state:            Closed,
	}
}

// State returns the breaker's current state, accounting for an elapsed
// cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute runs fn unless the breaker is open. The error from fn is passed
// through unchanged; ErrOpen is returned when the call was never attempted.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	b.maybeHalfOpen()
	if b.state == Open {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// maybeHalfOpen transitions Open to HalfOpen once the cooldown has elapsed.
// Callers must hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == Open && time.Since(b.openedAt) > b.cooldown {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	case Closed:
		b.failures = 0
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

// trip opens the breaker. Callers must hold b.mu.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.failures = 0
	b.successes = 0
}
