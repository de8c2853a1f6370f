package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestBreaker(clock Clock, hook TransitionFunc) *Breaker {
	return NewBreaker("user-service", BreakerSettings{FailureThreshold: 3, OpenDuration: 10 * time.Second}, clock, hook)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := newTestBreaker(NewManualClock(epoch), nil)

	for i := 0; i < 2; i++ {
		a, err := b.Allow()
		require.NoError(t, err)
		b.OnFailure(a)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.EqualValues(t, 2, b.Failures())

	a, err := b.Allow()
	require.NoError(t, err)
	b.OnFailure(a)
	assert.Equal(t, StateOpen, b.State())

	_, err = b.Allow()
	var open *CircuitOpenError
	require.True(t, errors.As(err, &open))
	assert.Equal(t, "user-service", open.Service)
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := newTestBreaker(NewManualClock(epoch), nil)

	b.OnFailure(Admission{})
	b.OnFailure(Admission{})
	b.OnSuccess(Admission{})
	b.OnFailure(Admission{})
	b.OnFailure(Admission{})

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ExactlyOneProbe(t *testing.T) {
	clock := NewManualClock(epoch)
	b := newTestBreaker(clock, nil)
	for i := 0; i < 3; i++ {
		b.OnFailure(Admission{})
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(10 * time.Second)

	var (
		wg       sync.WaitGroup
		probes   atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := b.Allow()
			if err != nil {
				rejected.Add(1)
				return
			}
			if a.Probe {
				probes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, probes.Load())
	assert.EqualValues(t, 63, rejected.Load())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_FailedProbeReopensAndResetsTimer(t *testing.T) {
	clock := NewManualClock(epoch)
	b := newTestBreaker(clock, nil)
	for i := 0; i < 3; i++ {
		b.OnFailure(Admission{})
	}
	clock.Advance(11 * time.Second)

	probe, err := b.Allow()
	require.NoError(t, err)
	require.True(t, probe.Probe)
	b.OnFailure(probe)
	assert.Equal(t, StateOpen, b.State())

	// The timer restarted at the failed probe.
	clock.Advance(9 * time.Second)
	_, err = b.Allow()
	assert.Error(t, err)

	clock.Advance(time.Second)
	probe, err = b.Allow()
	require.NoError(t, err)
	assert.True(t, probe.Probe)
}

func TestBreaker_SuccessfulProbeCloses(t *testing.T) {
	clock := NewManualClock(epoch)
	var transitions []string
	b := newTestBreaker(clock, func(service string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	for i := 0; i < 3; i++ {
		b.OnFailure(Admission{})
	}
	clock.Advance(10 * time.Second)

	probe, err := b.Allow()
	require.NoError(t, err)
	b.OnSuccess(probe)

	assert.Equal(t, StateClosed, b.State())
	assert.EqualValues(t, 0, b.Failures())
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, transitions)
}

func TestBreaker_ConcurrentFailuresFromClosed(t *testing.T) {
	t.Run("below threshold counts every failure", func(t *testing.T) {
		b := NewBreaker("svc", BreakerSettings{FailureThreshold: 100}, NewManualClock(epoch), nil)

		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, err := b.Allow()
				if err == nil {
					b.OnFailure(a)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 64, b.Failures())
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("crossing the threshold opens once", func(t *testing.T) {
		var opened atomic.Int32
		b := NewBreaker("svc", BreakerSettings{FailureThreshold: 5}, NewManualClock(epoch),
			func(_ string, from, to State) {
				if from == StateClosed && to == StateOpen {
					opened.Add(1)
				}
			})

		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.OnFailure(Admission{})
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, opened.Load())
		assert.Equal(t, StateOpen, b.State())
	})
}

func TestBreaker_AbandonedCallsAreNotFailures(t *testing.T) {
	b := newTestBreaker(NewManualClock(epoch), nil)

	for i := 0; i < 5; i++ {
		a, err := b.Allow()
		require.NoError(t, err)
		b.OnAbandon(a)
	}

	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Failures())
}

func TestBreaker_AbandonedHalfOpenCallHandsOver(t *testing.T) {
	clock := NewManualClock(epoch)
	var transitions []string
	b := newTestBreaker(clock, func(_ string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	for i := 0; i < 3; i++ {
		b.OnFailure(Admission{})
	}
	clock.Advance(10 * time.Second)

	probe, err := b.Allow()
	require.NoError(t, err)
	require.True(t, probe.Probe)
	b.OnAbandon(probe)
	assert.Equal(t, StateOpen, b.State())

	next, err := b.Allow()
	require.NoError(t, err, "an abandoned half-open call must not restart the cool-down")
	assert.True(t, next.Probe)
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->OPEN", "OPEN->HALF_OPEN"}, transitions)
}

func TestRegistry_SharesBreakerPerService(t *testing.T) {
	r := NewRegistry(BreakerSettings{FailureThreshold: 1}, NewManualClock(epoch),
		WithServiceSettings("inventory-service", BreakerSettings{FailureThreshold: 2}))

	assert.Same(t, r.Breaker("user-service"), r.Breaker("user-service"))

	r.Breaker("user-service").OnFailure(Admission{})
	r.Breaker("inventory-service").OnFailure(Admission{})

	assert.Equal(t, map[string]State{
		"user-service":      StateOpen,
		"inventory-service": StateClosed,
	}, r.States())
}
