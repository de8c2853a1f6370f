// Package discovery resolves logical service names to base URLs for the
// resilient client.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
)

// Registrar is implemented by registries a process can announce itself in.
type Registrar interface {
	Register(ctx context.Context, service, endpoint string) error
	Deregister(ctx context.Context, service, endpoint string) error
}

// Static is an in-memory registry with round-robin resolution.
type Static struct {
	mu       sync.RWMutex
	services map[string][]string
	next     atomic.Uint64
}

func NewStatic() *Static {
	return &Static{services: make(map[string][]string)}
}

// Parse builds a Static from "svc=http://a|http://b,svc2=http://c".
func Parse(spec string) (*Static, error) {
	s := NewStatic()
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		service, endpoints, ok := strings.Cut(entry, "=")
		service = strings.TrimSpace(service)
		if !ok || service == "" {
			return nil, fmt.Errorf("discovery: malformed entry %q", entry)
		}
		for _, ep := range strings.Split(endpoints, "|") {
			ep = strings.TrimSpace(ep)
			if ep == "" {
				continue
			}
			if u, err := url.Parse(ep); err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("discovery: invalid endpoint %q for %s", ep, service)
			}
			_ = s.Register(context.Background(), service, ep)
		}
	}
	return s, nil
}

func (s *Static) Resolve(_ context.Context, service string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eps := s.services[service]
	if len(eps) == 0 {
		return "", &resilience.NoEndpointError{Service: service}
	}
	n := s.next.Add(1) - 1
	return eps[n%uint64(len(eps))], nil
}

func (s *Static) Register(_ context.Context, service, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range s.services[service] {
		if ep == endpoint {
			return nil
		}
	}
	s.services[service] = append(s.services[service], endpoint)
	return nil
}

func (s *Static) Deregister(_ context.Context, service, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eps := s.services[service]
	for i, ep := range eps {
		if ep == endpoint {
			s.services[service] = append(eps[:i:i], eps[i+1:]...)
			break
		}
	}
	if len(s.services[service]) == 0 {
		delete(s.services, service)
	}
	return nil
}

// Endpoints returns a copy of what is registered for service.
func (s *Static) Endpoints(service string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.services[service]...)
}
