package resilience

import (
	"sync"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
)

// Registry hands out one Breaker per logical service. It is created once per
// process and shared by every call site, so all callers of a service see the
// same circuit.
type Registry struct {
	settings     BreakerSettings
	overrides    map[string]BreakerSettings
	clock        Clock
	onTransition TransitionFunc

	breakers sync.Map // service -> *Breaker
}

type RegistryOption func(*Registry)

// WithServiceSettings overrides the defaults for one service.
func WithServiceSettings(service string, s BreakerSettings) RegistryOption {
	return func(r *Registry) { r.overrides[service] = s }
}

func WithTransitionHook(fn TransitionFunc) RegistryOption {
	return func(r *Registry) { r.onTransition = fn }
}

// WithMetrics records every transition on m.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return WithTransitionHook(func(service string, from, to State) {
		m.ObserveCircuit(service, from.String(), to.String(), int(to))
	})
}

func NewRegistry(settings BreakerSettings, clock Clock, opts ...RegistryOption) *Registry {
	if clock == nil {
		clock = SystemClock()
	}
	r := &Registry{
		settings:  settings,
		overrides: make(map[string]BreakerSettings),
		clock:     clock,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Breaker(service string) *Breaker {
	if b, ok := r.breakers.Load(service); ok {
		return b.(*Breaker)
	}
	settings := r.settings
	if s, ok := r.overrides[service]; ok {
		settings = s
	}
	b, _ := r.breakers.LoadOrStore(service, NewBreaker(service, settings, r.clock, r.onTransition))
	return b.(*Breaker)
}

// States snapshots every breaker created so far.
func (r *Registry) States() map[string]State {
	out := make(map[string]State)
	r.breakers.Range(func(k, v any) bool {
		out[k.(string)] = v.(*Breaker).State()
		return true
	})
	return out
}
