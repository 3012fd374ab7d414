// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestNewLogHandler(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(newLogHandler(&buf, "warn", "json"))

		logger.Info("hidden")
		logger.Warn("shown", "subject_id", "1001")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"subject_id":"1001"`)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		handler := newLogHandler(&buf, "debug", "text")

		assert.True(t, handler.Enabled(context.Background(), slog.LevelDebug))
		slog.New(handler).Debug("sweep finished", "removed", 0)
		assert.Contains(t, buf.String(), "sweep finished")
	})
}
