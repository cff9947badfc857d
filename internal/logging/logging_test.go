package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path})
	require.NoError(t, err)

	logger.Info("indexed collection", slog.String("collection", "docs"))
	logger.Debug("suppressed at info level")
	cleanup()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, `"indexed collection"`)
	assert.Contains(t, content, `"collection":"docs"`)
	assert.NotContains(t, content, "suppressed")
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	w, err := newRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	// Force a tiny cap so a few writes rotate.
	w.maxBytes = 64

	line := strings.Repeat("x", 30) + "\n"
	for i := 0; i < 6; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".1")
	require.NoError(t, err)
	// The chain never grows past maxFiles + the live file.
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}
