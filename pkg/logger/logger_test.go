package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, "warn", "json")

	log.Info("dropped")
	log.Warn("kept", "component", "test")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "test", line["component"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger.New(&buf, "DEBUG", "text").Debug("hello", "n", 1)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "n=1")
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, logger.RequestID(ctx))

	ctx = logger.WithRequestID(ctx, "req-42")
	assert.Equal(t, "req-42", logger.RequestID(ctx))

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger.FromContext(ctx).Info("searching")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}
