package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/resilience"
	"github.com/jcmexdev/ecommerce-orchestrator/internal/pkg/respond"
)

const serviceName = "api-gateway"

// CircuitsResponse reports each known breaker's state.
type CircuitsResponse struct {
	Circuits map[string]string `json:"circuits"`
}

// NewRouter builds the gateway router. breakers and m may be nil.
func NewRouter(proxy *Proxy, breakers *resilience.Registry, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(interceptors.Metadata)
	r.Use(interceptors.Tracing(serviceName))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", respond.Health(serviceName))
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	if breakers != nil {
		r.Get("/circuits", func(w http.ResponseWriter, _ *http.Request) {
			states := breakers.States()
			out := CircuitsResponse{Circuits: make(map[string]string, len(states))}
			for svc, st := range states {
				out.Circuits[svc] = st.String()
			}
			respond.JSON(w, http.StatusOK, out)
		})
	}

	r.Handle("/api/*", proxy)
	return r
}
