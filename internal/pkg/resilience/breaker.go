package resilience

import (
	"sync/atomic"
	"time"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type BreakerSettings struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// OpenDuration is how long the circuit stays open before one probe is let through.
	OpenDuration time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.OpenDuration <= 0 {
		s.OpenDuration = 30 * time.Second
	}
	return s
}

// TransitionFunc observes state changes. It runs on the goroutine that won
// the transition and must not block.
type TransitionFunc func(service string, from, to State)

// breakerSnapshot is immutable once published.
type breakerSnapshot struct {
	state State
	since time.Time
}

// Breaker is a per-service circuit breaker. The state lives in one atomic
// pointer and every transition is a compare-and-swap on it, so exactly one
// caller wins each transition, including the OPEN to HALF_OPEN one that
// elects the probe.
type Breaker struct {
	service      string
	settings     BreakerSettings
	clock        Clock
	onTransition TransitionFunc

	snap     atomic.Pointer[breakerSnapshot]
	failures atomic.Int64
}

func NewBreaker(service string, settings BreakerSettings, clock Clock, onTransition TransitionFunc) *Breaker {
	if clock == nil {
		clock = SystemClock()
	}
	b := &Breaker{
		service:      service,
		settings:     settings.withDefaults(),
		clock:        clock,
		onTransition: onTransition,
	}
	b.snap.Store(&breakerSnapshot{state: StateClosed, since: clock.Now()})
	return b
}

// Admission is the ticket handed out by Allow. It must be returned through
// exactly one of OnSuccess, OnFailure or OnAbandon.
type Admission struct {
	Probe bool
}

// Allow decides whether a call may go to the network.
func (b *Breaker) Allow() (Admission, error) {
	for {
		cur := b.snap.Load()
		switch cur.state {
		case StateClosed:
			return Admission{}, nil
		case StateHalfOpen:
			return Admission{}, &CircuitOpenError{Service: b.service, State: StateHalfOpen}
		case StateOpen:
			if b.clock.Now().Sub(cur.since) < b.settings.OpenDuration {
				return Admission{}, &CircuitOpenError{Service: b.service, State: StateOpen}
			}
			if b.transition(cur, StateHalfOpen) {
				return Admission{Probe: true}, nil
			}
			// Lost the race; re-read and decide again.
		}
	}
}

func (b *Breaker) OnSuccess(a Admission) {
	b.failures.Store(0)
	if a.Probe {
		if cur := b.snap.Load(); cur.state == StateHalfOpen {
			b.transition(cur, StateClosed)
		}
	}
}

func (b *Breaker) OnFailure(a Admission) {
	if a.Probe {
		if cur := b.snap.Load(); cur.state == StateHalfOpen {
			b.transition(cur, StateOpen)
		}
		return
	}
	n := b.failures.Add(1)
	if n < int64(b.settings.FailureThreshold) {
		return
	}
	if cur := b.snap.Load(); cur.state == StateClosed {
		b.transition(cur, StateOpen)
	}
}

// OnAbandon returns an admission whose call said nothing about the
// downstream, such as one the caller cancelled. The failure count is left
// alone. An abandoned half-open admission puts the breaker back to OPEN with
// its cool-down already served, so the next caller is admitted in its place.
func (b *Breaker) OnAbandon(a Admission) {
	if !a.Probe {
		return
	}
	cur := b.snap.Load()
	if cur.state != StateHalfOpen {
		return
	}
	next := &breakerSnapshot{state: StateOpen, since: b.clock.Now().Add(-b.settings.OpenDuration)}
	if b.snap.CompareAndSwap(cur, next) && b.onTransition != nil {
		b.onTransition(b.service, StateHalfOpen, StateOpen)
	}
}

func (b *Breaker) State() State {
	return b.snap.Load().state
}

// Failures is the current consecutive failure count.
func (b *Breaker) Failures() int64 {
	return b.failures.Load()
}

func (b *Breaker) transition(from *breakerSnapshot, to State) bool {
	next := &breakerSnapshot{state: to, since: b.clock.Now()}
	if !b.snap.CompareAndSwap(from, next) {
		return false
	}
	if to == StateClosed || to == StateOpen {
		b.failures.Store(0)
	}
	if b.onTransition != nil {
		b.onTransition(b.service, from.state, to)
	}
	return true
}
