package zap

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ubzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/theory-cloud/todostack/pkg/observability"
)

func TestZapLogger_SanitizesMessageAndFields(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)

	logger, err := NewZapLogger(observability.LoggerConfig{}, WithZapLogger(ubzap.New(core)))
	require.NoError(t, err)

	logger.Info("hello\r\nworld", map[string]any{
		"authorization": "Bearer secret",
		"title":         "milk\r\n",
	})

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "helloworld", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", ctx["authorization"])
	assert.Equal(t, "milk", ctx["title"])
}

func TestZapLogger_DerivedFieldsAndLevels(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger, err := NewZapLogger(observability.LoggerConfig{}, WithZapLogger(ubzap.New(core)))
	require.NoError(t, err)

	derived := logger.WithRequestID("req-1").WithRouteKey("GET /todos/{id}").WithField("stack", "todo")
	derived.Debug("d")
	derived.Warn("w")
	derived.Error("e")
	logger.Info("parent")

	entries := observed.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	ctx := entries[2].ContextMap()
	assert.Equal(t, "req-1", ctx["request_id"])
	assert.Equal(t, "GET /todos/{id}", ctx["route_key"])
	assert.Equal(t, "todo", ctx["stack"])
	assert.NotContains(t, entries[3].ContextMap(), "request_id")

	assert.Equal(t, int64(4), logger.GetStats().EntriesLogged)
}

func TestZapLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(observability.LoggerConfig{Format: "json", Level: "debug"}, WithOutput(&buf))
	require.NoError(t, err)

	logger.WithTraceID("trace-1").Info("stack provisioned", map[string]any{"ApiUrl": "https://x/v1/"})
	require.NoError(t, logger.Flush(context.Background()))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "stack provisioned", line["message"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "https://x/v1/", line["ApiUrl"])
	assert.Equal(t, int64(1), logger.GetStats().FlushCount)
}

func TestZapLogger_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(observability.LoggerConfig{Format: "console", Level: "warn"}, WithOutput(&buf))
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestZapLogger_InvalidConfig(t *testing.T) {
	_, err := NewZapLogger(observability.LoggerConfig{Format: "xml"})
	assert.Error(t, err)

	_, err = NewZapLogger(observability.LoggerConfig{Format: "json", Level: "loud"})
	assert.Error(t, err)
}

func TestZapLogger_CloseStopsLogging(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger, err := NewZapLogger(observability.LoggerConfig{}, WithZapLogger(ubzap.New(core)))
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	logger.Error("dropped")

	assert.Empty(t, observed.All())
	assert.False(t, logger.IsHealthy())
}

func TestNormalizeLoggerConfig_FormatFollowsEnvironment(t *testing.T) {
	assert.Equal(t, "json", normalizeLoggerConfig(observability.LoggerConfig{}, true).Format)
	assert.Equal(t, "console", normalizeLoggerConfig(observability.LoggerConfig{}, false).Format)
	assert.Equal(t, "info", normalizeLoggerConfig(observability.LoggerConfig{}, false).Level)
	assert.Equal(t, "json", normalizeLoggerConfig(observability.LoggerConfig{Format: "json"}, false).Format)
}
