package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestSetupTelemetry_WithoutEndpoint(t *testing.T) {
	var buf bytes.Buffer
	tel, err := SetupTelemetry(context.Background(), TelemetryConfig{}, slog.LevelWarn, &buf)
	require.NoError(t, err)

	tel.Logger.Info("hidden")
	tel.Logger.Warn("shown", "app", "tickets")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "app=tickets")
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestFanoutHandler(t *testing.T) {
	var debug, warn bytes.Buffer
	h := &fanoutHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	l := slog.New(h).With("mount", "m1").WithGroup("req")

	l.Debug("detail", "id", 1)
	l.Warn("slow", "id", 2)

	assert.Contains(t, debug.String(), "detail")
	assert.Contains(t, debug.String(), "slow")
	assert.NotContains(t, warn.String(), "detail")
	assert.Contains(t, warn.String(), "mount=m1")
	assert.Contains(t, warn.String(), "req.id=2")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}
