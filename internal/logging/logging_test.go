package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/marksync/internal/config"
)

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(config.LogConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Infow("Quiet", "k", 1)
	logger.Warnw("Missing container: mobile bookmarks")

	out := buf.String()
	assert.NotContains(t, out, "Quiet")
	assert.Contains(t, out, "Missing container: mobile bookmarks")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(config.LogConfig{Level: "info", JSON: true}, &buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Infow("Processed bookmark events", "processed", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Processed bookmark events", line["msg"])
	assert.Equal(t, float64(3), line["processed"])
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "marksync.log")
	var buf bytes.Buffer
	logger, closeFn, err := New(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	logger.Debugw("Queued sync", "id", "abc")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "abc", line["id"])
	assert.Contains(t, buf.String(), "Queued sync")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty"}, nil)
	assert.Error(t, err)
}
