package constants

// contextKey is an unexported type for context keys in this package.
// Using a custom type prevents collisions with keys from other packages
// that might use the same underlying string value.
type contextKey string

const (
	HeaderXRequestId      = "X-Request-Id"
	HeaderXIdempotencyKey = "X-Idempotency-Key"
	HeaderXUserID         = "X-User-ID"

	// ContextKeyRequestID is the context key for the request ID.
	ContextKeyRequestID contextKey = "request-id"
	// ContextKeyIdempotencyKey is the context key for the idempotency key.
	ContextKeyIdempotencyKey contextKey = "idempotency-key"
	// ContextKeyUserID is the context key for the calling user.
	ContextKeyUserID contextKey = "user-id"
)
