package service

import (
	"log/slog"

	"readings-server/internal/modules/readings/repository"
	"readings-server/internal/modules/readings/types"
	"readings-server/internal/mqtt"
	"readings-server/internal/telemetry"
)

func registerMQTTHandler(subscriber mqtt.MQTTSubscriber, repo repository.ReadingsRepository, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(topic string, t telemetry.Telemetry) error {
		reading, err := repo.InsertReading(toNewReading(t))
		if err != nil {
			return err
		}
		logger.Debug("stored telemetry",
			"topic", topic,
			"device_id", reading.DeviceID,
			"id", reading.ID,
		)
		return nil
	})
}

func toNewReading(t telemetry.Telemetry) types.NewReading {
	deviceID := t.DeviceID
	return types.NewReading{
		DeviceID:    &deviceID,
		Humidity:    t.Humidity,
		Temperature: t.Temperature,
		Timestamp:   t.Timestamp,
	}
}
