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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevel(t *testing.T) {
	var out bytes.Buffer
	logger, err := newWithWriter(Config{Level: "warn"}, &out)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", zap.Int("slot", 3))
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
	assert.Contains(t, out.String(), `{"slot": 3}`)

	logger.Level.SetLevel(zapcore.DebugLevel)
	logger.Named("wheel").Debug("now shown")
	assert.Contains(t, out.String(), "wheel\tnow shown")
}

func TestNewJSON(t *testing.T) {
	var out bytes.Buffer
	logger, err := newWithWriter(Config{Format: "json"}, &out)
	require.NoError(t, err)

	logger.Info("status", zap.String("event", "boot"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "status", entry["msg"])
	assert.Equal(t, "boot", entry["event"])
}

func TestNewFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "sim.log")

	var out bytes.Buffer
	logger, err := newWithWriter(Config{File: FileConfig{Filename: filename}}, &out)
	require.NoError(t, err)

	logger.Info("to both")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"), "file is JSON")
	assert.Contains(t, string(data), `"msg":"to both"`)
	assert.Contains(t, out.String(), "to both")
}

func TestNewInvalid(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}
