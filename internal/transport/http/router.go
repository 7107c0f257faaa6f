// Package httptransport assembles the chi router from the per-domain
// handlers. Transport concerns stay here; handlers delegate to services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dealflow/internal/platform/middleware"
	"dealflow/pkg/platform/httputil"
)

// Registrar is anything that can attach its routes to a chi router.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries everything the router needs.
type Deps struct {
	Logger       *slog.Logger
	JWTValidator middleware.JWTValidator
	Handlers     []Registrar
	HealthChecks map[string]func() error
}

// NewRouter wires the middleware chain, the health and metrics endpoints, and
// every domain handler under authenticated /api/v1.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", healthHandler(d.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RequireAuth(d.JWTValidator, d.Logger))
		for _, h := range d.Handlers {
			h.Register(api)
		}
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		httputil.WriteJSON(w, status, resp)
	}
}
