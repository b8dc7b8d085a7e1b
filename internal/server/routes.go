package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /session", h.GetSession)
	mux.HandleFunc("POST /session/generate", h.Generate)
	mux.HandleFunc("POST /session/retry", h.Retry)
	mux.HandleFunc("POST /session/edit", h.EditAndRetry)
	mux.HandleFunc("POST /session/extend", h.Extend)
	mux.HandleFunc("POST /session/new", h.NewProject)

	mux.HandleFunc("GET /history", h.ListHistory)
	mux.HandleFunc("POST /history/{id}/load", h.LoadHistory)

	mux.HandleFunc("POST /credentials", h.SetCredentials)
	mux.HandleFunc("GET /media/{token}", h.Media)

	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
