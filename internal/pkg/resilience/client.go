package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors/constants"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
)

// Resolver maps a logical service name to a base URL.
type Resolver interface {
	Resolve(ctx context.Context, service string) (string, error)
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is a transport-neutral description of one outbound call. Path is
// joined to the resolved base URL.
type Request struct {
	Method         string
	Path           string
	RawQuery       string
	Header         http.Header
	Body           []byte
	IdempotencyKey string
	// Timeout overrides Options.Timeout for each attempt of this call when positive.
	Timeout time.Duration
	// MaxAttempts overrides Options.Retry.MaxAttempts when positive.
	MaxAttempts int
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("resilience: decode response: %w", err)
	}
	return nil
}

type Options struct {
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration
	Retry   RetryPolicy
	Clock   Clock
	Random  func() float64
	HTTP    Doer
	// Cache, when set, replays responses for idempotency keys that already succeeded.
	Cache   ResponseCache
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Client is the single path for service-to-service calls: discovery, circuit
// breaker, per-attempt timeout and bounded retries.
type Client struct {
	resolver Resolver
	breakers *Registry
	opts     Options
	tracer   trace.Tracer
}

func NewClient(resolver Resolver, breakers *Registry, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if breakers == nil {
		breakers = NewRegistry(BreakerSettings{}, opts.Clock)
	}
	return &Client{
		resolver: resolver,
		breakers: breakers,
		opts:     opts,
		tracer:   otel.Tracer("resilience"),
	}
}

func (c *Client) Breakers() *Registry { return c.breakers }

// Call sends req to service. A 4xx or 2xx answer is returned as a Response
// with a nil error; only unreachability is reported as an error.
func (c *Client) Call(ctx context.Context, service string, req *Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "resilience.Call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", service),
			attribute.String("http.method", req.Method),
			attribute.String("http.target", req.Path),
		),
	)
	defer span.End()

	resp, err := c.call(ctx, service, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) call(ctx context.Context, service string, req *Request) (*Response, error) {
	cacheKey := ""
	if c.opts.Cache != nil && req.IdempotencyKey != "" {
		cacheKey = responseKey(service, req)
		cached, ok, err := c.opts.Cache.Get(ctx, cacheKey)
		if err != nil {
			c.opts.Logger.WarnContext(ctx, "response cache read failed", "service", service, "error", err)
		} else if ok {
			c.opts.Metrics.ObserveCall(service, "replayed", 0)
			return cached, nil
		}
	}

	breaker := c.breakers.Breaker(service)
	policy := c.opts.Retry
	if req.MaxAttempts > 0 {
		policy.MaxAttempts = req.MaxAttempts
	}
	attempts := policy.Start(ctx, c.opts.Clock, c.opts.Random)

	var lastErr error
	for {
		endpoint, err := c.resolver.Resolve(ctx, service)
		if err != nil {
			c.opts.Metrics.ObserveCall(service, "no_endpoint", 0)
			return nil, err
		}

		admission, err := breaker.Allow()
		if err != nil {
			c.opts.Metrics.ObserveCall(service, "circuit_open", 0)
			if lastErr == nil {
				return nil, err
			}
			return nil, &DownstreamUnavailableError{Service: service, Attempts: attempts.Made(), Err: err}
		}

		start := c.opts.Clock.Now()
		resp, err := c.do(ctx, service, endpoint, req)
		elapsed := c.opts.Clock.Now().Sub(start)

		var permanent *permanentError
		if errors.As(err, &permanent) {
			// Nothing reached the downstream.
			breaker.OnAbandon(admission)
			return nil, permanent.err
		}

		if err != nil && ctx.Err() != nil {
			// The caller gave up; the downstream was not judged.
			breaker.OnAbandon(admission)
			c.opts.Metrics.ObserveCall(service, "cancelled", elapsed)
			return nil, &DownstreamUnavailableError{Service: service, Attempts: attempts.Made() + 1, Err: err}
		}

		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			breaker.OnSuccess(admission)
			c.opts.Metrics.ObserveCall(service, outcomeFor(resp.StatusCode), elapsed)
			if cacheKey != "" && resp.StatusCode < http.StatusMultipleChoices {
				if err := c.opts.Cache.Put(ctx, cacheKey, resp); err != nil {
					c.opts.Logger.WarnContext(ctx, "response cache write failed", "service", service, "error", err)
				}
			}
			return resp, nil
		}
		if err == nil {
			err = &StatusError{Service: service, StatusCode: resp.StatusCode}
		}

		breaker.OnFailure(admission)
		c.opts.Metrics.ObserveCall(service, "failure", elapsed)
		lastErr = err

		if ctx.Err() != nil {
			return nil, &DownstreamUnavailableError{Service: service, Attempts: attempts.Made() + 1, Err: lastErr}
		}

		delay, ok := attempts.Next()
		if !ok {
			c.opts.Logger.WarnContext(ctx, "downstream unavailable",
				"service", service, "attempts", attempts.Made(), "error", lastErr)
			return nil, &DownstreamUnavailableError{Service: service, Attempts: attempts.Made(), Err: lastErr}
		}

		c.opts.Logger.DebugContext(ctx, "retrying downstream call",
			"service", service, "attempt", attempts.Made(), "delay", delay, "error", err)
		if err := c.opts.Clock.Sleep(ctx, delay); err != nil {
			return nil, &DownstreamUnavailableError{Service: service, Attempts: attempts.Made(), Err: lastErr}
		}
	}
}

// permanentError marks failures that retrying cannot fix, such as an
// unparseable endpoint.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (c *Client) do(ctx context.Context, service, endpoint string, req *Request) (*Response, error) {
	timeout := c.opts.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(endpoint, "/") + req.Path
	if req.RawQuery != "" {
		url += "?" + req.RawQuery
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, url, body)
	if err != nil {
		return nil, &permanentError{err: fmt.Errorf("resilience: build request for %q: %w", service, err)}
	}
	for k, vv := range req.Header {
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(constants.HeaderXIdempotencyKey, req.IdempotencyKey)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	interceptors.Inject(ctx, httpReq.Header)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	res, err := c.opts.HTTP.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, callCtx, service, timeout, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, classify(ctx, callCtx, service, timeout, err)
	}

	return &Response{StatusCode: res.StatusCode, Header: res.Header.Clone(), Body: b}, nil
}

// classify turns an attempt-level timeout into DownstreamTimeoutError; the
// caller's own cancellation is left as a transport error.
func classify(parent, callCtx context.Context, service string, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &DownstreamTimeoutError{Service: service, Timeout: timeout}
	}
	return fmt.Errorf("resilience: call %q: %w", service, err)
}

func outcomeFor(status int) string {
	if status >= http.StatusBadRequest {
		return "client_error"
	}
	return "success"
}
