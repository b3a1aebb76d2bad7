package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"", LevelInfo},
		{"bogus", LevelInfo},
		{"  debug  ", LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:  LevelWarn,
		Format: "text",
		Output: &buf,
	})

	logger.Debug(context.Background(), "debug message")
	logger.Info(context.Background(), "info message")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), nil, "warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:  LevelInfo,
		Format: "json",
		Output: &buf,
	})

	logger.WithComponent("manager").Info(context.Background(), "client created", "client_id", 7)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "client created", entry["msg"])
	assert.Equal(t, "manager", entry["component"])
	assert.Equal(t, float64(7), entry["client_id"])
}

func TestErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:  LevelInfo,
		Format: "json",
		Output: &buf,
	})

	logger.Error(context.Background(), errors.New("socket closed"), "websocket read failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "socket closed", entry["error"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{
		Level:  LevelInfo,
		Format: "json",
		Output: &buf,
	})

	derived := base.With("client_id", 3).With("path", "/tmp/x.md")
	derived.Info(context.Background(), "render queued")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, float64(3), entry["client_id"])
	assert.Equal(t, "/tmp/x.md", entry["path"])

	// The base logger must be unchanged.
	buf.Reset()
	base.Info(context.Background(), "plain")
	assert.NotContains(t, buf.String(), "client_id")
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic and produce no observable output anywhere.
	logger.Info(context.Background(), "ignored")
	logger.Error(context.Background(), errors.New("ignored"), "ignored")
}

func TestTextOutputContainsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:  LevelDebug,
		Format: "text",
		Output: &buf,
	})

	logger.Debug(context.Background(), "dispatch selected")
	line := buf.String()
	assert.True(t, strings.Contains(line, "DEBUG"), "expected level in %q", line)
	assert.Contains(t, line, "dispatch selected")
}
