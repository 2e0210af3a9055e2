package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mantrip/internal/platform/metrics"
	"mantrip/internal/platform/middleware"
	"mantrip/pkg/platform/httputil"
)

// Registrar mounts routes on a chi router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the pieces the router mounts.
type Deps struct {
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	API        Registrar
	UI         Registrar
	Health     map[string]HealthCheck
	APITimeout time.Duration
}

// NewRouter wires the JSON API under /api, the tracker UI at the root, and the
// operational endpoints.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger, d.Metrics))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(d.Metrics))

	if d.API != nil {
		r.Route("/api", func(r chi.Router) {
			if d.APITimeout > 0 {
				r.Use(middleware.Timeout(d.APITimeout))
			}
			d.API.Register(r)
		})
	}
	if d.UI != nil {
		d.UI.Register(r)
	}

	if d.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/healthz", healthHandler(d.Health))
	return r
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := healthStatus{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if res.Checks == nil {
				res.Checks = make(map[string]string, len(checks))
			}
			if err := check(r.Context()); err != nil {
				res.Checks[name] = err.Error()
				res.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			res.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, res)
	}
}
