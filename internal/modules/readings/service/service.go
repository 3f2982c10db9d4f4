package service

import (
	"log/slog"

	"readings-server/internal/modules/readings/repository"
	"readings-server/internal/mqtt"
)

// Service feeds device telemetry into the same insert path the HTTP API uses.
type Service struct {
	repository repository.ReadingsRepository
	logger     *slog.Logger
}

func NewService(repository repository.ReadingsRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repository: repository, logger: logger}
}

func (s *Service) Register(subscriber mqtt.MQTTSubscriber) {
	registerMQTTHandler(subscriber, s.repository, s.logger)
}
