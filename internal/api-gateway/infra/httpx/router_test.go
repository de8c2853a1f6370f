package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/discovery"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

type recordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     string
}

func newStubServer(t *testing.T, status int, respBody string) (*httptest.Server, <-chan recordedRequest) {
	t.Helper()
	ch := make(chan recordedRequest, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- recordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Connection", "close")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

type gateway struct {
	handler  http.Handler
	registry *discovery.Static
	breakers *resilience.Registry
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	return newGatewayWith(t, entity.DefaultRoutes(), resilience.Options{
		Timeout: time.Second,
		Retry:   resilience.RetryPolicy{MaxAttempts: 1},
	})
}

func newGatewayWith(t *testing.T, routes *entity.RouteTable, opts resilience.Options) *gateway {
	t.Helper()
	reg := discovery.NewStatic()
	clock := resilience.NewManualClock(time.Unix(0, 0))
	breakers := resilience.NewRegistry(resilience.BreakerSettings{FailureThreshold: 2, OpenDuration: time.Minute}, clock)
	opts.Clock = clock
	client := resilience.NewClient(reg, breakers, opts)
	proxy := NewProxy(routes, client, nil)
	proxy.newKey = func() string { return "minted-key" }
	return &gateway{handler: NewRouter(proxy, breakers, nil), registry: reg, breakers: breakers}
}

func (g *gateway) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) respond.ErrorResponse {
	t.Helper()
	var body respond.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthRoute(t *testing.T) {
	g := newGateway(t)

	rr := g.serve(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body respond.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "api-gateway", body.Service)
}

func TestForwardingBodyHeadersAndHopByHopStripping(t *testing.T) {
	g := newGateway(t)
	srv, calls := newStubServer(t, http.StatusOK, `{"ok":true}`)
	require.NoError(t, g.registry.Register(t.Context(), "order-service", srv.URL))

	req := httptest.NewRequest(http.MethodPost, "/api/cart?trace=1", strings.NewReader(`{"productId":"p1","quantity":2}`))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-Idempotency-Key", "client-key")
	req.Header.Set("Proxy-Authorization", "secret")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Content-Type", "application/json")

	rr := g.serve(req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
	assert.Equal(t, "yes", rr.Header().Get("X-Upstream"))
	assert.Empty(t, rr.Header().Get("Connection"))

	got := <-calls
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api/cart", got.Path)
	assert.Equal(t, "trace=1", got.RawQuery)
	assert.JSONEq(t, `{"productId":"p1","quantity":2}`, got.Body)
	assert.Equal(t, "u1", got.Header.Get("X-User-ID"))
	assert.Equal(t, "client-key", got.Header.Get("X-Idempotency-Key"))
	assert.Empty(t, got.Header.Get("Proxy-Authorization"))
	assert.Empty(t, got.Header.Get("Keep-Alive"))
	assert.NotEmpty(t, got.Header.Get("X-Request-Id"))
}

func TestMintsIdempotencyKey(t *testing.T) {
	g := newGateway(t)
	srv, calls := newStubServer(t, http.StatusOK, `{}`)
	require.NoError(t, g.registry.Register(t.Context(), "inventory-service", srv.URL))

	rr := g.serve(httptest.NewRequest(http.MethodGet, "/api/products/p1", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	got := <-calls
	assert.Equal(t, "minted-key", got.Header.Get("X-Idempotency-Key"))
}

func TestDownstreamStatusIsCopiedVerbatim(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"created", http.StatusCreated, `{"orderId":"o1"}`},
		{"not found", http.StatusNotFound, `{"error":"order_not_found"}`},
		{"conflict", http.StatusConflict, `{"error":"insufficient_stock"}`},
		{"unprocessable", http.StatusUnprocessableEntity, `{"error":"empty_cart"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t)
			srv, _ := newStubServer(t, tt.status, tt.body)
			require.NoError(t, g.registry.Register(t.Context(), "order-service", srv.URL))

			req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
			req.Header.Set("X-User-ID", "u1")
			rr := g.serve(req)

			assert.Equal(t, tt.status, rr.Code)
			assert.JSONEq(t, tt.body, rr.Body.String())
		})
	}
}

func TestUnknownPrefix(t *testing.T) {
	g := newGateway(t)

	rr := g.serve(httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "route_not_found", decodeError(t, rr).Error)
}

func TestRequireUserID(t *testing.T) {
	g := newGateway(t)

	for _, path := range []string{"/api/cart", "/api/orders/o1"} {
		rr := g.serve(httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Equal(t, "missing_user_id", decodeError(t, rr).Error, path)
	}
}

func TestNoEndpointIsUnavailable(t *testing.T) {
	g := newGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users/u1", nil)
	rr := g.serve(req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "downstream_unavailable", decodeError(t, rr).Error)
}

func TestServerErrorsOpenTheCircuit(t *testing.T) {
	g := newGateway(t)
	srv, calls := newStubServer(t, http.StatusInternalServerError, `{"error":"boom"}`)
	require.NoError(t, g.registry.Register(t.Context(), "user-service", srv.URL))

	for i := 0; i < 3; i++ {
		rr := g.serve(httptest.NewRequest(http.MethodGet, "/api/users/u1", nil))
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	}
	// The third request was refused by the open breaker.
	assert.Len(t, calls, 2)

	rr := g.serve(httptest.NewRequest(http.MethodGet, "/circuits", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body CircuitsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "OPEN", body.Circuits["user-service"])
}

func TestOrdersRouteOutlivesCallTimeout(t *testing.T) {
	g := newGatewayWith(t, entity.NewRouteTable([]entity.Route{
		{Prefix: "/api/orders", Service: "order-service", RequireUser: true, Timeout: time.Second},
		{Prefix: "/api/users", Service: "user-service"},
	}), resilience.Options{Timeout: 20 * time.Millisecond})

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(60 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"orderId":"o1"}`))
	}))
	t.Cleanup(slow.Close)
	require.NoError(t, g.registry.Register(t.Context(), "order-service", slow.URL))
	require.NoError(t, g.registry.Register(t.Context(), "user-service", slow.URL))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := g.serve(req)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"orderId":"o1"}`, rr.Body.String())

	// Routes without their own timeout keep the client's.
	rr = g.serve(httptest.NewRequest(http.MethodGet, "/api/users/u1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCheckoutIsNotReplayed(t *testing.T) {
	g := newGatewayWith(t, entity.DefaultRoutes(), resilience.Options{
		Timeout: time.Second,
		Retry:   resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	srv, calls := newStubServer(t, http.StatusBadGateway, `{"error":"boom"}`)
	require.NoError(t, g.registry.Register(t.Context(), "order-service", srv.URL))

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.Header.Set("X-User-ID", "u1")
	rr := g.serve(req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Len(t, calls, 1)
}

func TestBodyTooLarge(t *testing.T) {
	g := newGateway(t)
	srv, _ := newStubServer(t, http.StatusOK, `{}`)
	require.NoError(t, g.registry.Register(t.Context(), "inventory-service", srv.URL))

	big := strings.Repeat("a", maxBodyBytes+1)
	rr := g.serve(httptest.NewRequest(http.MethodPost, "/api/products/p1/reservations", strings.NewReader(big)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
