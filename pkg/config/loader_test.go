package config_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amrazz/z-chat/pkg/config"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(newTestLogger(), "no-such-config-file")
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, 60*time.Second, cfg.Transport.ReadTimeout)
	require.Equal(t, 256, cfg.Transport.SendBuffer)
	require.True(t, cfg.Store.InMemory)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ZCHAT_SERVER_ADDRESS", ":9999")
	t.Setenv("ZCHAT_LOGLEVEL", "debug")

	cfg, err := config.Load(newTestLogger(), "no-such-config-file")
	require.NoError(t, err)

	require.Equal(t, ":9999", cfg.Server.Address)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("ZCHAT_LOGLEVEL", "shouting")

	_, err := config.Load(newTestLogger(), "no-such-config-file")
	require.ErrorContains(t, err, "invalid configuration")
}
