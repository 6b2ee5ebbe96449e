package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/feature"
	"github.com/udisondev/memsync/internal/mem"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Camera.Configured())
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
bridge:
  url: ws://10.0.0.2:7450/mem
  request_timeout: 500ms
frame:
  interval: 8ms
  width: 2560
  height: 1440
session:
  root:
    base: 0x7FF600001000
    path: [0x208]
  id_offset: 0x8D8
camera:
  fps:
    base: 0x7FF600002000
    path: [0x10]
  matrix_path: [0x30, 0x18]
  view_matrix: 0xDC
  fov: 0x198
  aspect: 0x4F8
  zoom: 0x1C4
features:
  suppression:
    enabled: true
    recoil_pct: 85
    sway_pct: 40
    delay: 100ms
    root:
      base: 0x7FF600001000
      path: [0x208, 0x338]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ws://10.0.0.2:7450/mem", cfg.Bridge.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Bridge.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Bridge.DialTimeout, "unset keys keep defaults")
	assert.Equal(t, 8*time.Millisecond, cfg.Frame.Interval)

	sl := cfg.Session.Layout()
	assert.Equal(t, mem.Address(0x7FF600001000), sl.Base)
	assert.Equal(t, chain.Path{0x208}, sl.Path)
	assert.Equal(t, uint64(0x8D8), sl.IDOffset)
	assert.True(t, cfg.Session.Configured())

	cl := cfg.Camera.Layout()
	assert.Equal(t, mem.Address(0x7FF600002000), cl.FPS.Base)
	assert.Equal(t, chain.Path{0x30, 0x18}, cl.MatrixPath)
	assert.Equal(t, uint64(0xDC), cl.ViewMatrix)
	assert.False(t, cl.Optic.Configured())

	vp := cfg.Frame.Viewport()
	assert.Equal(t, 2560, vp.Width)
	assert.Equal(t, 1440, vp.Height)

	s := cfg.Features.Suppression.Settings()
	assert.True(t, s.Enabled)
	assert.InDelta(t, 85, s.RecoilPct, 1e-9)
	assert.Equal(t, 100*time.Millisecond, s.Delay)
	assert.Equal(t, feature.DefaultSuppressionLayout(), cfg.Features.Suppression.FeatureLayout())
}

func TestLoad_CameraListAndScope(t *testing.T) {
	path := writeConfig(t, `
camera:
  cameras:
    base: 0x7FF600003000
    path: [0x0]
    name_path: [0x30, 0x60]
  ads:
    base: 0x7FF600001000
    path: [0x208, 0x4A8]
  ads_offset: 0x1A
  optic_active: 0x51
  scope_zoom_offset: 0x2C
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Camera.Configured(), "a camera list alone is enough")

	cl := cfg.Camera.Layout()
	assert.True(t, cl.Configured())
	assert.Equal(t, mem.Address(0x7FF600003000), cl.List.Base)
	assert.Equal(t, chain.Path{0x30, 0x60}, cl.List.NamePath)
	assert.False(t, cl.FPS.Configured())
	assert.Equal(t, chain.Path{0x208, 0x4A8}, cl.ADS.Path)
	assert.Equal(t, uint64(0x1A), cl.ADSOffset)
	assert.Equal(t, uint64(0x51), cl.OpticActive)
	assert.False(t, cl.ScopeZoom.Configured())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
bridge:
  url: ws://file/mem
features:
  suppression:
    recoil_pct: 10
`)
	t.Setenv("MEMSYNC_BRIDGE_URL", "ws://env/mem")
	t.Setenv("MEMSYNC_SUPPRESSION_RECOIL_PCT", "95")
	t.Setenv("MEMSYNC_DATABASE_DSN", "postgres://memsync@localhost/memsync")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://env/mem", cfg.Bridge.URL)
	assert.InDelta(t, 95, cfg.Features.Suppression.RecoilPct, 1e-9)
	assert.True(t, cfg.Database.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad yaml", body: "bridge: [unterminated"},
		{name: "bad log level", body: "log_level: verbose"},
		{name: "percent out of range", body: "features:\n  suppression:\n    sway_pct: 120"},
		{name: "empty bridge url", body: "bridge:\n  url: \"\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLive_Reload(t *testing.T) {
	path := writeConfig(t, "features:\n  suppression:\n    enabled: false\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	live := NewLive(path, cfg)
	before := live.Get()
	assert.False(t, before.Features.Suppression.Enabled)

	require.NoError(t, os.WriteFile(path, []byte("features:\n  suppression:\n    enabled: true\n    sway_pct: 30\n"), 0o600))
	require.NoError(t, live.Reload())
	assert.True(t, live.Get().Features.Suppression.Enabled)
	assert.False(t, before.Features.Suppression.Enabled, "previously returned config is not mutated")

	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o600))
	require.Error(t, live.Reload())
	assert.True(t, live.Get().Features.Suppression.Enabled, "failed reload keeps previous config")
	assert.Equal(t, path, live.Path())
}

func TestLive_ReloadLeavesLoggingToCaller(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := writeConfig(t, "log_level: info\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	live := NewLive(path, cfg)

	require.NoError(t, live.Reload())
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o600))
	require.Error(t, live.Reload())
	assert.Empty(t, buf.String())
}
