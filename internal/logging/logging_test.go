package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want zapcore.Level
	}{
		{"default", Config{Format: "json"}, zapcore.InfoLevel},
		{"warn", Config{Level: "warn", Format: "json"}, zapcore.WarnLevel},
		{"console debug", Config{Level: "debug", Format: "console"}, zapcore.DebugLevel},
		{"debug flag wins", Config{Level: "error", Debug: true}, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNew_WritesToDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := New(Config{Format: "json", Dir: dir})
	require.NoError(t, err)
	l.Info("hello")
	_ = l.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestPrepareDir_RemovesOldest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"b.log", "a.log", "c.log"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, nil, 0o600))
		mod := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(p, mod, mod))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))

	path, err := prepareDir(dir, 3, base.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "20260102-000000.log"), path)
	assert.NoFileExists(t, filepath.Join(dir, "b.log"))
	assert.FileExists(t, filepath.Join(dir, "a.log"))
	assert.FileExists(t, filepath.Join(dir, "c.log"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}
