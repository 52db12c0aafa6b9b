package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "api.log")
	logger, closeLogger, err := New("api-server", config.LogConfig{Level: "info", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)

	Component(logger, "scheduler").Info("reservation confirmed", "id", "res_1")
	require.NoError(t, closeLogger())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(body))
	assert.Contains(t, line, `"service":"api-server"`)
	assert.Contains(t, line, `"component":"scheduler"`)
	assert.Contains(t, line, `"msg":"reservation confirmed"`)
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, _, err := New("x", config.LogConfig{Format: "xml"})
	assert.Error(t, err)

	_, _, err = New("x", config.LogConfig{Output: "syslog"})
	assert.Error(t, err)
}

func TestComponentWithoutLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Component(nil, "cache").Error("dropped")
	})
}
