package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"readings-server/internal/config"
)

// NewHandler wraps mux with CORS, request logging and metrics.
func NewHandler(cfg config.Config, mux *http.ServeMux, metrics *Metrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return corsMiddleware(cfg.CORSAllowedOrigins, requestLogger(logger, metrics, mux))
}

func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
