package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCall("svc", "success", time.Millisecond)
	m.ObserveCircuit("svc", "CLOSED", "OPEN", 1)
	m.ObserveOrder("confirmed")
	m.ObservePublish("sent")
	m.ObserveDeferred()

	called := false
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveCall("user-service", "failure", 10*time.Millisecond)
	m.ObserveCall("user-service", "failure", 0)
	m.ObserveCircuit("user-service", "CLOSED", "OPEN", 1)
	m.ObserveDeferred()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("user-service", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.circuitState.WithLabelValues("user-service")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.circuitTransitions.WithLabelValues("user-service", "CLOSED", "OPEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxDeferred))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/abc", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/orders/{id}", "GET", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}
