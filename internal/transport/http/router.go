// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civic/internal/aggregation/handler"
	"civic/internal/platform/metrics"
	"civic/pkg/platform/httputil"
	"civic/pkg/platform/middleware/admin"
	"civic/pkg/platform/middleware/metadata"
	"civic/pkg/platform/middleware/request"
	"civic/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router mounts.
type Deps struct {
	Resolve *handler.Handler
	Metrics *metrics.Metrics
	// Checks are run by /healthz, keyed by dependency name.
	Checks map[string]HealthCheck
	// AdminToken guards /v1/admin; empty disables the admin routes.
	AdminToken string
	// RequestTimeout bounds every handler; it must exceed the resolve
	// deadline cap.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter wires middleware, the resolve API, admin routes, health and
// Prometheus metrics.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(logger))

	r.Get("/healthz", healthHandler(deps.Checks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.Middleware)
		}
		deps.Resolve.Register(r)

		if deps.AdminToken != "" {
			r.Group(func(r chi.Router) {
				r.Use(admin.RequireAdminToken(deps.AdminToken, logger))
				deps.Resolve.RegisterAdmin(r)
			})
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, name := range slices.Sorted(maps.Keys(checks)) {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
