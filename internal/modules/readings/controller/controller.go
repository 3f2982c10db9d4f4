package controller

import (
	"net/http"

	"readings-server/internal/modules/readings/repository"
)

type ReadingsController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type readingsControllerImpl struct {
	repository repository.ReadingsRepository
}

func NewReadingsController(repository repository.ReadingsRepository) ReadingsController {
	return &readingsControllerImpl{repository: repository}
}

func (c *readingsControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/readings", c.handleCreate)
	mux.HandleFunc("GET /api/readings", c.handleList)
	mux.HandleFunc("GET /api/readings/latest", c.handleLatest)
}
