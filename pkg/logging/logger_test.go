package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableTimestamp: true})

	logger.Debug("hidden")
	logger.Info("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")

	buf.Reset()
	logger.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, logger.GetLevel())
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestTextFormatterFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableTimestamp: true})

	logger.Info("request completed",
		String("method", "GET"),
		Int("status", 200),
		String("path", "/users"),
	)

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, "[INFO] request completed | method=GET path=/users status=200", line)
}

func TestWithFieldsInherited(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, &TextFormatter{DisableTimestamp: true})

	child := logger.WithFields(String("component", "sse"))
	child.Info("connected", String("url", "/events"))

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "component=sse")
	assert.Contains(t, line, "url=/events")

	// Parent is unaffected.
	buf.Reset()
	logger.Info("plain")
	assert.NotContains(t, buf.String(), "component=sse")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Warn("request failed",
		Int("status", 404),
		ErrorField(assert.AnError),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "request failed", entry["msg"])
	assert.Equal(t, float64(404), entry["status"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
	assert.NotEmpty(t, entry["time"])
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	logger.Info("dropped")
	logger.SetLevel(DebugLevel)
	assert.Equal(t, ErrorLevel, logger.GetLevel())
	assert.NotNil(t, logger.WithFields(String("k", "v")))
}
