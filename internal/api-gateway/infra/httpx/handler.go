// Package httpx is the gateway's HTTP surface. Every /api request is matched
// against the route table and forwarded to the owning service.
package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/api-gateway/core/domain/entity"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/api-gateway/core/ports"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

const maxBodyBytes = 1 << 20

// Proxy forwards requests to the service owning their path prefix.
type Proxy struct {
	routes    *entity.RouteTable
	forwarder ports.Forwarder
	logger    *slog.Logger
	newKey    func() string
}

func NewProxy(routes *entity.RouteTable, forwarder ports.Forwarder, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		routes:    routes,
		forwarder: forwarder,
		logger:    logger,
		newKey:    uuid.NewString,
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	route, ok := p.routes.Match(r.URL.Path)
	if !ok {
		respond.Error(w, http.StatusNotFound, "route_not_found", "no service handles "+r.URL.Path)
		return
	}
	if route.RequireUser && interceptors.UserID(ctx) == "" {
		respond.Error(w, http.StatusBadRequest, "missing_user_id", constants.HeaderXUserID+" header is required")
		return
	}

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respond.Error(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
				return
			}
			respond.Error(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		body = b
	}

	key := interceptors.IdempotencyKey(ctx)
	if key == "" {
		key = p.newKey()
	}

	header := make(http.Header)
	copyHeaders(header, r.Header)

	resp, err := p.forwarder.Call(ctx, route.Service, &resilience.Request{
		Method:         r.Method,
		Path:           r.URL.EscapedPath(),
		RawQuery:       r.URL.RawQuery,
		Header:         header,
		Body:           body,
		IdempotencyKey: key,
		Timeout:        route.Timeout,
		MaxAttempts:    route.MaxAttempts,
	})
	if err != nil {
		p.writeForwardError(w, r, route, err)
		return
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func (p *Proxy) writeForwardError(w http.ResponseWriter, r *http.Request, route entity.Route, err error) {
	ctx := r.Context()
	if resilience.IsUnavailable(err) {
		p.logger.WarnContext(ctx, "service unavailable", "service", route.Service, "path", r.URL.Path, "error", err)
		respond.Error(w, http.StatusServiceUnavailable, "downstream_unavailable", err.Error())
		return
	}

	p.logger.ErrorContext(ctx, "forward failed", "service", route.Service, "path", r.URL.Path, "error", err)
	respond.Error(w, http.StatusBadGateway, "bad_gateway", err.Error())
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopByHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopByHopHeader(header string) bool {
	switch strings.ToLower(header) {
	case "connection", "proxy-connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailer", "transfer-encoding", "upgrade", "host", "content-length":
		return true
	default:
		return false
	}
}
