package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossmarket/internal/config"
)

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "logs", "test.log")
	logger, err := InitializeLogger(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())

	ctx := WithTraceID(context.Background(), "trace-abc")
	logger.InfoContext(ctx, "analysis finished", "label", "strike")
	logger.Debug("not written at info level")
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "analysis finished", entry["msg"])
	assert.Equal(t, "strike", entry["label"])
	assert.Equal(t, "trace-abc", entry["trace_id"])
}

func TestNewLogger_Errors(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Output: "file"})
	assert.Error(t, err)
}

func TestTraceHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "text", &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.With("component", "engine").WithGroup("run").InfoContext(WithTraceID(context.Background(), "t-1"), "started", "variants", 3)
	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "run.variants=3")
	assert.Contains(t, out, "t-1")

	buf.Reset()
	logger.Info("no trace")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestTraceContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	ctx = EnsureTraceID(ctx)
	id := GetTraceID(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetTraceID(EnsureTraceID(ctx)), "existing trace id is kept")
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "text", nil))

	WithError(WithComponent(logger, "exporter"), errors.New("disk full")).Error("export failed")
	out := buf.String()
	assert.Contains(t, out, "component=exporter")
	assert.Contains(t, out, `error="disk full"`)

	assert.Same(t, logger, WithError(logger, nil))

	ctx := EnsureTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetTraceID(EnsureTraceID(ctx)))
}
