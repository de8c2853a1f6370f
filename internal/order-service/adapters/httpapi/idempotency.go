package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
)

// StoredResponse is a finished POST /api/orders answer kept for replay.
type StoredResponse struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, bool, error)
	Save(ctx context.Context, key string, resp StoredResponse) error
}

// CacheIdempotencyStore keeps responses in a cache.Cache, which is redis in
// production and in-process memory otherwise.
type CacheIdempotencyStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCacheIdempotencyStore(c cache.Cache, ttl time.Duration) *CacheIdempotencyStore {
	return &CacheIdempotencyStore{cache: c, ttl: ttl}
}

func (s *CacheIdempotencyStore) Get(ctx context.Context, key string) (*StoredResponse, bool, error) {
	raw, err := s.cache.Get(ctx, s.cache.GenerateKey("idempotency", key))
	if err != nil {
		return nil, false, err
	}
	if raw == "" {
		return nil, false, nil
	}
	var resp StoredResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false, fmt.Errorf("httpapi: decode stored response: %w", err)
	}
	return &resp, true, nil
}

func (s *CacheIdempotencyStore) Save(ctx context.Context, key string, resp StoredResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("httpapi: encode stored response: %w", err)
	}
	return s.cache.Set(ctx, s.cache.GenerateKey("idempotency", key), string(b), s.ttl)
}
