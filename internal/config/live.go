package config

import "sync/atomic"

// Live holds the current configuration and swaps it atomically on reload.
// Readers must treat the returned Config as immutable.
type Live struct {
	path string
	cur  atomic.Pointer[Config]
}

// NewLive wraps an already loaded config read from path.
func NewLive(path string, cfg Config) *Live {
	l := &Live{path: path}
	l.cur.Store(&cfg)
	return l
}

// Get returns the current config.
func (l *Live) Get() *Config {
	return l.cur.Load()
}

// Path returns the file the config is reloaded from.
func (l *Live) Path() string {
	return l.path
}

// Reload re-reads the file. On error the previous config stays in effect.
// Logging is left to the caller.
func (l *Live) Reload() error {
	cfg, err := Load(l.path)
	if err != nil {
		return err
	}
	l.cur.Store(&cfg)
	return nil
}
