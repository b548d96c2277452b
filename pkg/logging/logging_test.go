package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardbench/pkg/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("estimator", "true_rank")

	logger.Info("trained")
	logger.Warn("slow epoch")

	assert.Contains(t, a.String(), "trained")
	assert.Contains(t, a.String(), "estimator=true_rank")
	assert.Contains(t, a.String(), "slow epoch")
	assert.NotContains(t, b.String(), "trained")
	assert.Contains(t, b.String(), "slow epoch")
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetupLoggerConsoleOnly(t *testing.T) {
	logger, closeFn := SetupLogger(config.LogConfig{Level: "error"})
	require.NotNil(t, logger)
	defer closeFn()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
}
