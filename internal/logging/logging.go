// Package logging builds the slog loggers shared by the agentq binaries.
//
// Agents speak the scheduler protocol on stdout, so loggers are always
// handed an explicit writer and the binaries pass stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/me/agentq/internal/config"
)

// New builds a logger from the logging section of the config. Every record
// carries app ("cli", "server" or the agent name) so interleaved stderr from
// the scheduler's children can be told apart. Empty level and format fall
// back to info and text.
func New(c config.LoggingConfig, app string, w io.Writer) (*slog.Logger, error) {
	level, ok := lookupLevel(c.Level)
	if !ok {
		return nil, fmt.Errorf("logging: unknown level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("logging: unknown format %q (want text or json)", c.Format)
	}
	logger := NewLoggerWithWriter(level, c.Format, w)
	if app != "" {
		logger = logger.With("app", app)
	}
	return logger, nil
}

// NewLoggerWithWriter creates a logger writing text or json records to w.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	level, _ := lookupLevel(s)
	return level
}

func lookupLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
