package window

import (
	"log/slog"
	"net/http"

	"readings-server/internal/utils"
)

const registeredMessage = "Window open command registered"

type commandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type WindowController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type windowControllerImpl struct {
	commander Commander
	logger    *slog.Logger
}

func NewWindowController(commander Commander, logger *slog.Logger) WindowController {
	if logger == nil {
		logger = slog.Default()
	}
	return &windowControllerImpl{commander: commander, logger: logger}
}

func (c *windowControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/window/open", c.handleOpen)
}

// handleOpen ignores the request body.
func (c *windowControllerImpl) handleOpen(w http.ResponseWriter, r *http.Request) {
	if err := c.commander.OpenWindow(r.Context()); err != nil {
		c.logger.Error("window open command failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "window open command failed")
		return
	}
	utils.WriteJSON(w, http.StatusOK, commandResponse{Success: true, Message: registeredMessage})
}
