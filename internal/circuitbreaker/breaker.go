// Package circuitbreaker provides a per-key circuit breaker with
// closed → open → half-open state transitions. The explorer client keys it
// by upstream host so one failing provider does not stall the others.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrOpen is returned by Execute when the circuit for a key is open.
var ErrOpen = errors.New("circuit open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: requests flow through
	StateOpen                  // Tripped: requests are rejected
	StateHalfOpen              // Probing: one request allowed to test recovery
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var cbStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "walletscope",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(cbStateTransitions)
}

type entry struct {
	state       State
	failures    int
	lastFailure time.Time
}

// Breaker is a per-key circuit breaker. It trips open after threshold
// consecutive failures. After openDuration the circuit moves to half-open
// and allows one probe request.
type Breaker struct {
	mu           sync.Mutex
	entries      map[string]*entry
	threshold    int
	openDuration time.Duration
	now          func() time.Time
	onTransition func(key string, from, to State)
}

// New creates a circuit breaker that opens after threshold consecutive
// failures and stays open for openDuration before probing.
func New(threshold int, openDuration time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	return &Breaker{
		entries:      make(map[string]*entry),
		threshold:    threshold,
		openDuration: openDuration,
		now:          time.Now,
	}
}

// OnTransition sets a callback invoked (outside the lock) on state changes.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Execute runs fn if the circuit for key allows it and records the outcome.
// It returns ErrOpen without calling fn when the circuit is open.
// Errors for which ignore returns true do not count as failures.
func (b *Breaker) Execute(key string, fn func() error, ignore func(error) bool) error {
	if !b.Allow(key) {
		return ErrOpen
	}
	err := fn()
	if err == nil || (ignore != nil && ignore(err)) {
		b.RecordSuccess(key)
		return err
	}
	b.RecordFailure(key)
	return err
}

// Allow returns true if a request to key should be allowed.
// If the circuit is open and openDuration has elapsed, it transitions to half-open.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return true
	}

	var fire func()
	allowed := true
	switch e.state {
	case StateOpen:
		if b.now().Sub(e.lastFailure) >= b.openDuration {
			fire = b.transition(e, key, StateHalfOpen)
		} else {
			allowed = false
		}
	case StateHalfOpen:
		allowed = false // a probe is already in flight
	}
	b.mu.Unlock()

	if fire != nil {
		fire()
	}
	return allowed
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	var fire func()
	if e.state == StateHalfOpen {
		fire = b.transition(e, key, StateClosed)
	}
	e.failures = 0
	b.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// RecordFailure counts a failure and trips the circuit at the threshold.
// A failed half-open probe reopens it.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}
	e.failures++
	e.lastFailure = b.now()

	var fire func()
	switch {
	case e.state == StateHalfOpen:
		fire = b.transition(e, key, StateOpen)
	case e.state == StateClosed && e.failures >= b.threshold:
		fire = b.transition(e, key, StateOpen)
	}
	b.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// State returns the current state for a key. Returns StateClosed for unknown keys.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return StateClosed
	}
	return e.state
}

// transition changes state, records the metric and returns the callback
// to run once the lock is released. Caller must hold b.mu.
func (b *Breaker) transition(e *entry, key string, to State) func() {
	from := e.state
	if from == to {
		return nil
	}
	e.state = to
	cbStateTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
	if b.onTransition == nil {
		return nil
	}
	fn := b.onTransition
	return func() { fn(key, from, to) }
}
