package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/config"
)

func appConfig(format, level, env string) *config.AppConfig {
	return &config.AppConfig{
		Name:        "tagflow-test",
		Version:     "0.0.1",
		Environment: env,
		LogLevel:    level,
		LogFormat:   format,
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(appConfig("json", "info", config.EnvironmentProduction), &buf)

	l.Info("sweep finished", "applied", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "sweep finished", record["msg"])
	assert.Equal(t, "tagflow-test", record["service"])
	assert.Equal(t, "0.0.1", record["version"])
	assert.Equal(t, "production", record["env"])
	assert.EqualValues(t, 3, record["applied"])
	assert.NotContains(t, record, "source", "production logs omit source locations")
}

func TestNewWithWriter_TextAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(appConfig("text", "warn", "development"), &buf)

	l.Info("hidden")
	l.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=visible")
	assert.Contains(t, out, "source=")
}

func TestNewWithWriter_PanicsOnNilConfig(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "logger: config cannot be nil", func() {
		NewWithWriter(nil, &bytes.Buffer{})
	})
}

func TestComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Component(base, "sweeper").Info("tick")

	assert.Contains(t, buf.String(), "component=sweeper")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"super-critical", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}
