package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = ParseLevel("chatty")
	assert.Error(t, err)
}

func TestNewTeesToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "honeycluster.jsonl")
	log, done, err := New(Options{Level: "info", File: path, Console: &console})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("processed file", zap.String("source", "cowrie.json.2019-05-18"), zap.Int("sessions", 3))
	done()

	assert.Contains(t, console.String(), "processed file")
	assert.NotContains(t, console.String(), "hidden")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"processed file"`)
	assert.Contains(t, lines[0], `"sessions":3`)
}

func TestNewJSONConsole(t *testing.T) {
	var console bytes.Buffer
	log, done, err := New(Options{JSON: true, Console: &console})
	require.NoError(t, err)
	log.Warn("skipped", zap.String("reason", "malformed"))
	done()
	assert.True(t, strings.HasPrefix(console.String(), "{"))
	assert.Contains(t, console.String(), `"level":"warn"`)
}
