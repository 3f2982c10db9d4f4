package window

import (
	"context"
	"log/slog"
)

// Commander carries out a window-open request. Implementations that talk to
// real hardware plug in here.
type Commander interface {
	OpenWindow(ctx context.Context) error
}

// LogCommander only records that a command arrived.
type LogCommander struct {
	Logger *slog.Logger
}

func (c LogCommander) OpenWindow(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "received window open command")
	return nil
}
