package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lakehouse/internal/middleware"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Handler        *Handler
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	// RateLimitRPS limits ingest and drop calls per client. Zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger
}

// NewRouter builds the full router. ctx bounds background work such as the
// rate limiter sweep.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	var mutating []func(http.Handler) http.Handler
	if cfg.RateLimitRPS > 0 {
		mutating = append(mutating, middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	r.Route("/v1", func(r chi.Router) {
		cfg.Handler.Routes(r, mutating...)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
