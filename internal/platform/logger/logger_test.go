package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mantrip/internal/platform/config"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json by default", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(config.LogConfig{Level: "info"}, &buf)
		log.Info("attendance_created", "log_type", "audit")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "attendance_created", entry["msg"])
		assert.Equal(t, "audit", entry["log_type"])
		assert.Equal(t, "mantrip", entry["service"])
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(config.LogConfig{Level: "warn", Format: "text"}, &buf)
		log.Info("hidden")
		assert.Empty(t, buf.String())
		log.Warn("shown")
		assert.Contains(t, buf.String(), "msg=shown")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
