package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

// Redis keeps each service's endpoints in the set "<prefix>:<service>", so
// every replica of every process sees the same registry.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "discovery"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(service string) string {
	return fmt.Sprintf("%s:%s", r.prefix, service)
}

func (r *Redis) Resolve(ctx context.Context, service string) (string, error) {
	ep, err := r.client.SRandMember(ctx, r.key(service)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && ep == "") {
		return "", &resilience.NoEndpointError{Service: service}
	}
	if err != nil {
		return "", fmt.Errorf("discovery: resolve %q: %w", service, err)
	}
	return ep, nil
}

func (r *Redis) Register(ctx context.Context, service, endpoint string) error {
	if err := r.client.SAdd(ctx, r.key(service), endpoint).Err(); err != nil {
		return fmt.Errorf("discovery: register %q: %w", service, err)
	}
	return nil
}

func (r *Redis) Deregister(ctx context.Context, service, endpoint string) error {
	if err := r.client.SRem(ctx, r.key(service), endpoint).Err(); err != nil {
		return fmt.Errorf("discovery: deregister %q: %w", service, err)
	}
	return nil
}
