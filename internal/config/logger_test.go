package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerInstallsDefault(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	for _, env := range []string{"production", "development"} {
		logger := NewLogger(ServerConfig{Environment: env})
		assert.NotNil(t, logger, env)
		assert.Same(t, logger, slog.Default(), env)
	}
}
