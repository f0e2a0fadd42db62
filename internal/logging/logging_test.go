package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/agentq/internal/config"
)

func TestNewTagsApp(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "text"}, "nomos", &buf)
	require.NoError(t, err)

	logger.Info("audit record finalized", "upload_id", 12)
	assert.Contains(t, buf.String(), "app=nomos")
	assert.Contains(t, buf.String(), "upload_id=12")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "JSON"}, "server", &buf)
	require.NoError(t, err)

	logger.Debug("request", "status", 200)
	assert.Contains(t, buf.String(), `"msg":"request"`)
	assert.Contains(t, buf.String(), `"app":"server"`)
	assert.Contains(t, buf.String(), `"status":200`)
}

func TestNewDefaultsAndFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{}, "", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "app=")
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, "cli", &bytes.Buffer{})
	assert.ErrorContains(t, err, `unknown level "loud"`)

	_, err = New(config.LoggingConfig{Format: "xml"}, "cli", &bytes.Buffer{})
	assert.ErrorContains(t, err, `unknown format "xml"`)
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), tt.input)
	}
}
