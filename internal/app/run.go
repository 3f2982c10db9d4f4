package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"readings-server/internal/config"
	"readings-server/internal/db"
	"readings-server/internal/httpapi"
	"readings-server/internal/modules/readings"
	"readings-server/internal/modules/window"
	"readings-server/internal/mqtt"
)

const (
	mqttConnectTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"sqlLog", cfg.SQLLog,
		"corsAllowedOrigins", cfg.CORSAllowedOrigins,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	if err := db.Migrate(dbConn, logger); err != nil {
		return err
	}
	logger.Info("database ready", "path", cfg.SQLitePath)

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled() {
		subscriber, err = mqtt.NewSubscriber(cfg, logger)
		if err != nil {
			return err
		}
	}

	// The handler is attached inside NewHandler, before Connect, so messages
	// delivered right after CONNACK are not lost.
	handler := NewHandler(cfg, dbConn, subscriber, nil, logger)

	if subscriber != nil {
		connectCtx, connectCancel := context.WithTimeout(ctx, mqttConnectTimeout)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if subscriber != nil {
			subscriber.Disconnect()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// NewHandler mounts every feature on one mux and wraps it with the shared
// middleware. subscriber may be nil when MQTT ingestion is disabled; commander
// may be nil to use the logging window commander.
func NewHandler(cfg config.Config, dbConn *sql.DB, subscriber *mqtt.Subscriber, commander window.Commander, logger *slog.Logger) http.Handler {
	metrics := httpapi.NewMetrics()
	mux := httpapi.NewMux(dbConn, metrics)

	var telemetrySource mqtt.MQTTSubscriber
	if subscriber != nil {
		telemetrySource = subscriber
	}
	readings.RegisterFeature(mux, dbConn, telemetrySource, logger)
	window.RegisterFeature(mux, commander, logger)

	return httpapi.NewHandler(cfg, mux, metrics, logger)
}
