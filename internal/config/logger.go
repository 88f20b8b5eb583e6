package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger builds the process logger and installs it as the slog default.
// Production emits JSON; other environments get a colored console handler.
func NewLogger(cfg ServerConfig) *slog.Logger {
	var logger *slog.Logger
	if cfg.Environment == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	} else {
		logger = slog.New(log.NewWithOptions(os.Stdout, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Level:           log.DebugLevel,
			Prefix:          "imaginify",
		}))
	}
	slog.SetDefault(logger)
	return logger
}
