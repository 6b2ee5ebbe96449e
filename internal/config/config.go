package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/memsync/internal/camera"
	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/driver"
	"github.com/udisondev/memsync/internal/feature"
	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/session"
)

// Config holds all configuration for memsync.
type Config struct {
	LogLevel string `yaml:"log_level" env:"MEMSYNC_LOG_LEVEL"`

	Bridge   BridgeConfig   `yaml:"bridge"`
	Database DatabaseConfig `yaml:"database"`
	Frame    FrameConfig    `yaml:"frame"`
	Session  SessionConfig  `yaml:"session"`
	Camera   CameraConfig   `yaml:"camera"`
	Features FeaturesConfig `yaml:"features"`
}

// BridgeConfig locates the memory bridge.
type BridgeConfig struct {
	URL            string        `yaml:"url"             env:"MEMSYNC_BRIDGE_URL"`
	DialTimeout    time.Duration `yaml:"dial_timeout"    env:"MEMSYNC_BRIDGE_DIAL_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"MEMSYNC_BRIDGE_REQUEST_TIMEOUT"`
}

// DatabaseConfig holds PostgreSQL parameters. An empty DSN disables
// session history and the write journal.
type DatabaseConfig struct {
	DSN           string        `yaml:"dsn"            env:"MEMSYNC_DATABASE_DSN"`
	JournalBuffer int           `yaml:"journal_buffer"`
	JournalBatch  int           `yaml:"journal_batch"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.DSN != ""
}

// FrameConfig drives the projection frame loop.
type FrameConfig struct {
	Interval time.Duration `yaml:"interval" env:"MEMSYNC_FRAME_INTERVAL"`
	Width    int           `yaml:"width"    env:"MEMSYNC_VIEWPORT_WIDTH"`
	Height   int           `yaml:"height"   env:"MEMSYNC_VIEWPORT_HEIGHT"`
}

// Viewport returns the configured viewport; zero sizes fall back in the projector.
func (f FrameConfig) Viewport() camera.Viewport {
	return camera.Viewport{Width: f.Width, Height: f.Height}
}

// Locator is a base address plus a pointer path.
type Locator struct {
	Base uint64   `yaml:"base"`
	Path []uint64 `yaml:"path"`
}

func (l Locator) camera() camera.Locator {
	return camera.Locator{Base: mem.Address(l.Base), Path: chain.Path(l.Path)}
}

// SessionConfig locates the session id.
type SessionConfig struct {
	Interval time.Duration `yaml:"interval"`
	Root     Locator       `yaml:"root"`
	IDOffset uint64        `yaml:"id_offset"`
}

// Configured reports whether the session id can be located.
func (s SessionConfig) Configured() bool {
	return s.Root.Base != 0
}

// Layout converts to the watcher layout.
func (s SessionConfig) Layout() session.Layout {
	return session.Layout{
		Base:     mem.Address(s.Root.Base),
		Path:     chain.Path(s.Root.Path),
		IDOffset: s.IDOffset,
	}
}

// CameraConfig is the foreign camera layout plus projection options.
type CameraConfig struct {
	Cameras         CameraListConfig `yaml:"cameras"`
	FPS             Locator          `yaml:"fps"`
	Optic           Locator          `yaml:"optic"`
	MatrixPath      []uint64         `yaml:"matrix_path"`
	ViewMatrix      uint64           `yaml:"view_matrix"`
	FOV             uint64           `yaml:"fov"`
	Aspect          uint64           `yaml:"aspect"`
	Zoom            uint64           `yaml:"zoom"`
	ADS             Locator          `yaml:"ads"`
	ADSOffset       uint64           `yaml:"ads_offset"`
	OpticActive     uint64           `yaml:"optic_active"`
	ScopeZoom       Locator          `yaml:"scope_zoom"`
	ScopeZoomOffset uint64           `yaml:"scope_zoom_offset"`

	BoundsCheck bool    `yaml:"bounds_check"`
	Margin      float32 `yaml:"margin"`
}

// CameraListConfig locates the list of every camera. When set it takes
// precedence over the fps and optic locators.
type CameraListConfig struct {
	Base     uint64   `yaml:"base"`
	Path     []uint64 `yaml:"path"`
	NamePath []uint64 `yaml:"name_path"`
}

// Configured reports whether the FPS camera can be located.
func (c CameraConfig) Configured() bool {
	return c.Cameras.Base != 0 || c.FPS.Base != 0
}

// Layout converts to the camera manager layout.
func (c CameraConfig) Layout() camera.Layout {
	return camera.Layout{
		List: camera.CameraList{
			Base:     mem.Address(c.Cameras.Base),
			Path:     chain.Path(c.Cameras.Path),
			NamePath: chain.Path(c.Cameras.NamePath),
		},
		FPS:             c.FPS.camera(),
		Optic:           c.Optic.camera(),
		MatrixPath:      chain.Path(c.MatrixPath),
		ViewMatrix:      c.ViewMatrix,
		FOV:             c.FOV,
		Aspect:          c.Aspect,
		Zoom:            c.Zoom,
		ADS:             c.ADS.camera(),
		ADSOffset:       c.ADSOffset,
		OpticActive:     c.OpticActive,
		ScopeZoom:       c.ScopeZoom.camera(),
		ScopeZoomOffset: c.ScopeZoomOffset,
	}
}

// ProjectOptions returns the options consumers pass to Projector.Project.
func (c CameraConfig) ProjectOptions() camera.ProjectOptions {
	return camera.ProjectOptions{BoundsCheck: c.BoundsCheck, Margin: c.Margin}
}

// FeaturesConfig holds per-feature settings.
type FeaturesConfig struct {
	Suppression SuppressionConfig `yaml:"suppression"`
}

// SuppressionConfig configures recoil and sway suppression.
type SuppressionConfig struct {
	Enabled   bool          `yaml:"enabled"    env:"MEMSYNC_SUPPRESSION_ENABLED"`
	RecoilPct float64       `yaml:"recoil_pct" env:"MEMSYNC_SUPPRESSION_RECOIL_PCT"`
	SwayPct   float64       `yaml:"sway_pct"   env:"MEMSYNC_SUPPRESSION_SWAY_PCT"`
	Tolerance float64       `yaml:"tolerance"`
	Delay     time.Duration `yaml:"delay"`

	// Root locates the weapon animation object.
	Root   Locator           `yaml:"root"`
	Layout SuppressionLayout `yaml:"layout"`
}

// SuppressionLayout holds the offsets below the weapon animation object.
type SuppressionLayout struct {
	Breath          []uint64 `yaml:"breath"`
	Recoil          []uint64 `yaml:"recoil"`
	BreathIntensity uint64   `yaml:"breath_intensity"`
	RecoilFactors   uint64   `yaml:"recoil_factors"`
	Mask            uint64   `yaml:"mask"`
}

// Settings converts to the per-tick feature settings.
func (s SuppressionConfig) Settings() feature.SuppressionSettings {
	return feature.SuppressionSettings{
		Enabled:   s.Enabled,
		RecoilPct: s.RecoilPct,
		SwayPct:   s.SwayPct,
		Tolerance: s.Tolerance,
		Delay:     s.Delay,
	}
}

// FeatureLayout converts to the feature layout.
func (s SuppressionConfig) FeatureLayout() feature.SuppressionLayout {
	return feature.SuppressionLayout{
		Breath:          chain.Path(s.Layout.Breath),
		Recoil:          chain.Path(s.Layout.Recoil),
		BreathIntensity: s.Layout.BreathIntensity,
		RecoilFactors:   s.Layout.RecoilFactors,
		Mask:            s.Layout.Mask,
	}
}

// Default returns Config with sensible defaults. Base addresses are left
// zero: they depend on the attached process and come from the config file.
func Default() Config {
	sl := feature.DefaultSuppressionLayout()
	return Config{
		LogLevel: "info",
		Bridge: BridgeConfig{
			URL:            "ws://127.0.0.1:7450/mem",
			DialTimeout:    5 * time.Second,
			RequestTimeout: 2 * time.Second,
		},
		Database: DatabaseConfig{
			JournalBuffer: 1024,
			JournalBatch:  128,
			FlushInterval: time.Second,
		},
		Frame: FrameConfig{
			Interval: driver.DefaultInterval,
			Width:    camera.DefaultWidth,
			Height:   camera.DefaultHeight,
		},
		Session: SessionConfig{
			Interval: session.DefaultInterval,
			Root:     Locator{Path: []uint64{0x208}}, // world → local player
			IDOffset: 0x8D8,
		},
		Camera: CameraConfig{
			MatrixPath:  []uint64{0x30, 0x18},
			BoundsCheck: true,
			Margin:      camera.DefaultMargin,
		},
		Features: FeaturesConfig{
			Suppression: SuppressionConfig{
				Tolerance: feature.DefaultSuppressionTolerance,
				Delay:     feature.DefaultSuppressionDelay,
				Root:      Locator{Path: []uint64{0x208, 0x338}}, // world → local player → weapon animation
				Layout: SuppressionLayout{
					Breath:          sl.Breath,
					Recoil:          sl.Recoil,
					BreathIntensity: sl.BreathIntensity,
					RecoilFactors:   sl.RecoilFactors,
					Mask:            sl.Mask,
				},
			},
		},
	}
}

// Load loads config from a YAML file, then applies MEMSYNC_* environment
// overrides. If the file doesn't exist, defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	if c.Bridge.URL == "" {
		errs = append(errs, errors.New("bridge.url is required"))
	}
	s := c.Features.Suppression
	if s.RecoilPct < 0 || s.RecoilPct > 100 {
		errs = append(errs, fmt.Errorf("features.suppression.recoil_pct %v outside [0, 100]", s.RecoilPct))
	}
	if s.SwayPct < 0 || s.SwayPct > 100 {
		errs = append(errs, fmt.Errorf("features.suppression.sway_pct %v outside [0, 100]", s.SwayPct))
	}
	if c.Frame.Interval < 0 || c.Session.Interval < 0 || s.Delay < 0 {
		errs = append(errs, errors.New("intervals must not be negative"))
	}
	return errors.Join(errs...)
}
