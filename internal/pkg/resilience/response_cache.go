package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/cache"
)

// ResponseCache stores successful responses by idempotency key.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*Response, bool, error)
	Put(ctx context.Context, key string, resp *Response) error
}

func responseKey(service string, req *Request) string {
	return fmt.Sprintf("%s|%s|%s|%s", service, req.Method, req.Path, req.IdempotencyKey)
}

type MemoryResponseCache struct {
	mu      sync.RWMutex
	entries map[string]*Response
}

func NewMemoryResponseCache() *MemoryResponseCache {
	return &MemoryResponseCache{entries: make(map[string]*Response)}
}

func (m *MemoryResponseCache) Get(_ context.Context, key string) (*Response, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return cloneResponse(r), true, nil
}

func (m *MemoryResponseCache) Put(_ context.Context, key string, resp *Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = cloneResponse(resp)
	return nil
}

func cloneResponse(r *Response) *Response {
	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       append([]byte(nil), r.Body...),
	}
}

// storedResponse is the JSON shape kept in the key/value store.
type storedResponse struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body"`
}

// KVResponseCache keeps responses in a cache.Cache, typically redis, so
// replays survive restarts and are shared between replicas.
type KVResponseCache struct {
	kv  cache.Cache
	ttl time.Duration
}

func NewKVResponseCache(kv cache.Cache, ttl time.Duration) *KVResponseCache {
	return &KVResponseCache{kv: kv, ttl: ttl}
}

func (c *KVResponseCache) Get(ctx context.Context, key string) (*Response, bool, error) {
	raw, err := c.kv.Get(ctx, c.kv.GenerateKey("responses", key))
	if err != nil {
		return nil, false, err
	}
	if raw == "" {
		return nil, false, nil
	}
	var s storedResponse
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false, fmt.Errorf("resilience: decode cached response: %w", err)
	}
	return &Response{StatusCode: s.StatusCode, Header: s.Header, Body: s.Body}, true, nil
}

func (c *KVResponseCache) Put(ctx context.Context, key string, resp *Response) error {
	b, err := json.Marshal(storedResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body})
	if err != nil {
		return fmt.Errorf("resilience: encode cached response: %w", err)
	}
	return c.kv.Set(ctx, c.kv.GenerateKey("responses", key), b, c.ttl)
}
