package interceptors

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors/constants"
)

// Metadata copies the propagated request headers into the context so that
// handlers can read them and outbound calls can forward them. It must run
// after chi's middleware.RequestID so a generated id is picked up.
func Metadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := strings.TrimSpace(r.Header.Get(constants.HeaderXRequestId))
		if requestID == "" {
			requestID = middleware.GetReqID(ctx)
		}
		ctx = WithRequestID(ctx, requestID)

		if key := strings.TrimSpace(r.Header.Get(constants.HeaderXIdempotencyKey)); key != "" {
			ctx = WithIdempotencyKey(ctx, key)
		}
		if user := strings.TrimSpace(r.Header.Get(constants.HeaderXUserID)); user != "" {
			ctx = WithUserID(ctx, user)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, constants.ContextKeyRequestID, id)
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, constants.ContextKeyIdempotencyKey, key)
}

func WithUserID(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, constants.ContextKeyUserID, user)
}

func RequestID(ctx context.Context) string {
	return value(ctx, constants.ContextKeyRequestID)
}

func IdempotencyKey(ctx context.Context) string {
	return value(ctx, constants.ContextKeyIdempotencyKey)
}

func UserID(ctx context.Context) string {
	return value(ctx, constants.ContextKeyUserID)
}

// Inject writes the propagated values held by ctx into outbound headers.
// Headers already present on h are left untouched.
func Inject(ctx context.Context, h http.Header) {
	set := func(name, v string) {
		if v != "" && h.Get(name) == "" {
			h.Set(name, v)
		}
	}
	set(constants.HeaderXRequestId, RequestID(ctx))
	set(constants.HeaderXIdempotencyKey, IdempotencyKey(ctx))
	set(constants.HeaderXUserID, UserID(ctx))
}

func value(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
