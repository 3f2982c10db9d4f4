package window

import (
	"log/slog"
	"net/http"
)

// RegisterFeature mounts the window command endpoint. A nil commander falls
// back to LogCommander.
func RegisterFeature(mux *http.ServeMux, commander Commander, logger *slog.Logger) {
	if commander == nil {
		commander = LogCommander{Logger: logger}
	}
	windowController := NewWindowController(commander, logger)
	windowController.RegisterRoutes(mux)
}
