package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cmutils/internal/health"
	"cmutils/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	HealthChecker  *health.Checker
	Progress       ProgressSource
	Metrics        *observability.Metrics
	MetricsHandler http.Handler // Prometheus scrape handler, /metrics is not mounted when nil
}

// NewRouter creates the status router.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.HealthChecker, cfg.Progress)

	r := chi.NewRouter()
	r.Use(RecoveryMiddleware())
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)
	r.Get("/status", handler.Status)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}
