package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevelSelection(t *testing.T) {
	ctx := context.Background()

	logger := newLogger("debug", "text", io.Discard)
	assert.True(t, logger.Enabled(ctx, slog.LevelDebug))

	logger = newLogger("error", "text", io.Discard)
	assert.False(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.True(t, logger.Enabled(ctx, slog.LevelError))

	// Unknown levels fall back to info.
	logger = newLogger("loud", "text", io.Discard)
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
}

func TestNewLoggerFormatSelection(t *testing.T) {
	var buf bytes.Buffer
	newLogger("info", "json", &buf).Info("Worker ready.", "handler", 1)
	assert.Contains(t, buf.String(), `"msg":"Worker ready."`)

	buf.Reset()
	newLogger("info", "text", &buf).Info("Worker ready.", "handler", 1)
	assert.Contains(t, buf.String(), `msg="Worker ready."`)
}
