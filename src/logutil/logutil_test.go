package logutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"trace", "trace"},
		{"debug", "debug"},
		{"info", "info"},
		{"warn", "warn"},
		{"warning", "warn"},
		{"error", "error"},
		{"", "info"},
		{"  nonsense ", "info"},
	}
	for _, c := range cases {
		if got := parseLevel(c.in).String(); got != c.want {
			t.Errorf("parseLevel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNewJSONWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	l, c := New(Options{Level: "debug", Format: "json", Writer: &buf})
	assert.Nil(t, c)

	child := l.With().Str("component", "pool").Logger()
	child.Info().Int("slot", 1).Msg("slot started")
	out := buf.String()
	assert.Contains(t, out, `"component":"pool"`)
	assert.Contains(t, out, `"slot":1`)
	assert.Contains(t, out, "slot started")
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Options{Level: "warn", Format: "json", Writer: &buf})
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileOutput(t *testing.T) {
	dir := t.TempDir()
	l, c := New(Options{Level: "info", Format: "json", FileOutput: true, Dir: dir})
	require.NotNil(t, c)
	l.Info().Msg("to file")
	require.NoError(t, c.Close())

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestRotateIfNeeded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LogFileName)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 16)), 0o644))
	require.NoError(t, os.WriteFile(archiveName(path, 1), []byte("old1"), 0o644))

	rotateIfNeeded(path, maxSizeBytes)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(archiveName(path, 1))
	require.NoError(t, err)
	assert.Len(t, data, 16)
	data, err = os.ReadFile(archiveName(path, 2))
	require.NoError(t, err)
	assert.Equal(t, "old1", string(data))
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "********", RedactKey("short"))
	assert.Equal(t, "sk-o...wxyz", RedactKey("sk-or-v1-abcdefghijklmnopqrstuvwxyz"))
}

func TestGetBeforeInitIsDisabled(t *testing.T) {
	l := Get()
	require.NotNil(t, l)
	l.Info().Msg("dropped")
}
