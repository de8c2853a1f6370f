package entity

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Route sends every path under Prefix to the logical Service.
type Route struct {
	Prefix      string `yaml:"prefix"`
	Service     string `yaml:"service"`
	RequireUser bool   `yaml:"requireUser"`
	// Timeout bounds each forwarded attempt; zero uses the client default.
	Timeout time.Duration `yaml:"timeout"`
	// MaxAttempts caps forwarding attempts; zero uses the client's retry policy.
	MaxAttempts int `yaml:"maxAttempts"`
}

// CheckoutTimeout covers an order attempt that runs to its completion
// deadline on the order service, plus the reply.
const CheckoutTimeout = 35 * time.Second

const ordersPrefix = "/api/orders"

// RouteTable resolves paths by longest matching prefix.
type RouteTable struct {
	routes []Route
}

// userScoped lists the prefixes that act on a caller's own cart or orders.
var userScoped = []string{"/api/cart", "/api/orders"}

func DefaultRoutes() *RouteTable {
	return NewRouteTable([]Route{
		{Prefix: "/api/cart", Service: "order-service", RequireUser: true},
		{Prefix: ordersPrefix, Service: "order-service", RequireUser: true},
		{Prefix: "/api/products", Service: "inventory-service"},
		{Prefix: "/api/users", Service: "user-service"},
	})
}

// NewRouteTable orders routes for matching. Routes under /api/orders that
// leave Timeout or MaxAttempts unset get CheckoutTimeout and a single
// attempt: a checkout outlives the default call timeout and is not safe to
// replay.
func NewRouteTable(routes []Route) *RouteTable {
	sorted := make([]Route, len(routes))
	for i, r := range routes {
		r.Prefix = "/" + strings.Trim(r.Prefix, "/")
		if r.Prefix == ordersPrefix || strings.HasPrefix(r.Prefix, ordersPrefix+"/") {
			if r.Timeout == 0 {
				r.Timeout = CheckoutTimeout
			}
			if r.MaxAttempts == 0 {
				r.MaxAttempts = 1
			}
		}
		sorted[i] = r
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &RouteTable{routes: sorted}
}

// Match returns the route whose prefix is the longest whole-segment prefix
// of path: "/api/cart" matches "/api/cart/items/p1" but not "/api/cartoon".
func (t *RouteTable) Match(path string) (Route, bool) {
	for _, r := range t.routes {
		if r.Prefix == "/" || path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/") {
			return r, true
		}
	}
	return Route{}, false
}

func (t *RouteTable) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// ParseRoutes reads "prefix=service[@timeout],...". Prefixes for carts and
// orders require a user id.
func ParseRoutes(spec string) (*RouteTable, error) {
	var routes []Route
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, service, ok := strings.Cut(entry, "=")
		prefix, service = strings.TrimSpace(prefix), strings.TrimSpace(service)
		service, timeoutText, hasTimeout := strings.Cut(service, "@")
		if !ok || !strings.HasPrefix(prefix, "/") || service == "" {
			return nil, fmt.Errorf("gateway route %q: want /prefix=service[@timeout]", entry)
		}
		r := Route{Prefix: prefix, Service: service, RequireUser: isUserScoped(prefix)}
		if hasTimeout {
			d, err := time.ParseDuration(timeoutText)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("gateway route %q: invalid timeout %q", entry, timeoutText)
			}
			r.Timeout = d
		}
		routes = append(routes, r)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("gateway routes %q: no routes", spec)
	}
	return NewRouteTable(routes), nil
}

type routesFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadRoutesFile reads a YAML document of the form
//
//	routes:
//	  - prefix: /api/cart
//	    service: order-service
//	    requireUser: true
//	  - prefix: /api/orders
//	    service: order-service
//	    timeout: 45s
func LoadRoutesFile(path string) (*RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file %s: %w", path, err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes YAML: %w", err)
	}
	for _, r := range f.Routes {
		if !strings.HasPrefix(r.Prefix, "/") || r.Service == "" || r.Timeout < 0 || r.MaxAttempts < 0 {
			return nil, fmt.Errorf("routes file %s: invalid route %+v", path, r)
		}
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("routes file %s: no routes", path)
	}
	return NewRouteTable(f.Routes), nil
}

func isUserScoped(prefix string) bool {
	for _, p := range userScoped {
		if prefix == p || strings.HasPrefix(prefix, p+"/") {
			return true
		}
	}
	return false
}
