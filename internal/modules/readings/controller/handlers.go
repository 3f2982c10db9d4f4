package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"readings-server/internal/modules/readings/types"
	"readings-server/internal/utils"
)

const (
	insertFailedMessage = "DB insert failed"
	queryFailedMessage  = "DB query failed"
)

func (c *readingsControllerImpl) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeNewReading(w, r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	reading, err := c.repository.InsertReading(in)
	if err != nil {
		var vErr *types.ValidationError
		if errors.As(err, &vErr) {
			utils.WriteError(w, http.StatusBadRequest, vErr.Message)
			return
		}
		slog.Error("insert reading failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, insertFailedMessage)
		return
	}
	utils.WriteJSON(w, http.StatusOK, reading)
}

func (c *readingsControllerImpl) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseRecentQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := c.repository.GetRecentReadings(limit)
	if err != nil {
		slog.Error("list readings failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, queryFailedMessage)
		return
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	utils.WriteJSON(w, http.StatusOK, readings)
}

// handleLatest writes JSON null when nothing has been stored yet.
func (c *readingsControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := c.repository.GetLatestReading()
	if err != nil {
		slog.Error("latest reading failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, queryFailedMessage)
		return
	}
	utils.WriteJSON(w, http.StatusOK, latest)
}
