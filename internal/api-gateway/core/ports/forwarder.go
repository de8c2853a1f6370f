package ports

import (
	"context"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

// Forwarder delivers a request to a logical service. *resilience.Client
// satisfies it.
type Forwarder interface {
	Call(ctx context.Context, service string, req *resilience.Request) (*resilience.Response, error)
}
