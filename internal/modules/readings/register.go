package readings

import (
	"database/sql"
	"log/slog"
	"net/http"

	"readings-server/internal/modules/readings/controller"
	"readings-server/internal/modules/readings/repository"
	"readings-server/internal/modules/readings/service"
	"readings-server/internal/mqtt"
)

// RegisterFeature mounts the readings API on mux. When subscriber is non-nil,
// MQTT telemetry is stored through the same repository.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, subscriber mqtt.MQTTSubscriber, logger *slog.Logger) {
	readingsRepository := repository.NewRepository(db)
	readingsController := controller.NewReadingsController(readingsRepository)
	readingsController.RegisterRoutes(mux)

	if subscriber != nil {
		service.NewService(readingsRepository, logger).Register(subscriber)
	}
}
