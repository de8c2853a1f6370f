// Package metrics owns the process-wide Prometheus registry. A nil *Metrics is
// valid and records nothing, which keeps tests free of metric plumbing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	calls              *prometheus.CounterVec
	callDuration       *prometheus.HistogramVec
	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec
	orders             *prometheus.CounterVec
	events             *prometheus.CounterVec
	outboxDeferred     prometheus.Counter
	httpRequests       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resilient_calls_total",
			Help: "Outbound calls made through the resilient client, by outcome.",
		}, []string{"service", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resilient_call_duration_seconds",
			Help:    "Latency of individual outbound attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_state",
			Help: "Breaker state per service: 0 closed, 1 open, 2 half-open.",
		}, []string{"service"}),
		circuitTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_transitions_total",
			Help: "Breaker state transitions.",
		}, []string{"service", "from", "to"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Order attempts by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Order events handed to the broker, by outcome.",
		}, []string{"outcome"}),
		outboxDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_deferred_total",
			Help: "Events parked in the outbox after publish retries ran out.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Inbound HTTP requests.",
		}, []string{"route", "method", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.calls, m.callDuration, m.circuitState, m.circuitTransitions,
		m.orders, m.events, m.outboxDeferred, m.httpRequests,
	)
	return m
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCall(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(service, outcome).Inc()
	if d > 0 {
		m.callDuration.WithLabelValues(service).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveCircuit(service, from, to string, state int) {
	if m == nil {
		return
	}
	m.circuitTransitions.WithLabelValues(service, from, to).Inc()
	m.circuitState.WithLabelValues(service).Set(float64(state))
}

func (m *Metrics) ObserveOrder(outcome string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePublish(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDeferred() {
	if m == nil {
		return
	}
	m.outboxDeferred.Inc()
}

// Middleware counts requests by chi route pattern so path parameters do not
// blow up label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
	})
}
