package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/camera"
	"github.com/udisondev/memsync/internal/config"
)

func TestReloadConfig_LogsOncePerReload(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "memsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frame:\n  width: 800\n  height: 600\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	live := config.NewLive(path, cfg)
	projector := camera.NewProjector(cfg.Frame.Viewport())

	require.NoError(t, os.WriteFile(path, []byte("frame:\n  width: 1280\n  height: 720\n"), 0o600))
	reloadConfig(live, projector)
	assert.Equal(t, 1, strings.Count(buf.String(), "config reloaded"))
	assert.Equal(t, camera.Viewport{Width: 1280, Height: 720}, projector.Viewport())

	buf.Reset()
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o600))
	reloadConfig(live, projector)
	assert.Equal(t, 1, strings.Count(buf.String(), "reloading config"))
	assert.Equal(t, camera.Viewport{Width: 1280, Height: 720}, projector.Viewport(), "failed reload keeps the viewport")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}
