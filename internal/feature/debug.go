package feature

import "sync/atomic"

// debugLoggingEnabled guards per-tick debug logs so the hot path skips
// building attributes when debug output is off.
var debugLoggingEnabled atomic.Bool

// EnableDebugLogging enables or disables per-tick debug logging.
// Called from main after the log level is known.
func EnableDebugLogging(enabled bool) {
	debugLoggingEnabled.Store(enabled)
}

// IsDebugEnabled returns true if per-tick debug logging is enabled.
func IsDebugEnabled() bool {
	return debugLoggingEnabled.Load()
}
