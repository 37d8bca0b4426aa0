// Package rlog provides the process-wide structured logger used across
// the adapter core's components. It is a thin wrapper over zerolog; the
// core has no logging infrastructure of its own to configure (that is
// the hosting adapter process's job), so this package just establishes
// conventions: component name as a field, Warn for recovered per-item
// failures, Error for surfaced contract violations.
package rlog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Singleton is the process-wide default logger. Adapter hosts may
// replace it with SetSingleton before constructing any core components.
var Singleton = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

var mu sync.RWMutex

// SetSingleton overrides the process-wide default logger.
func SetSingleton(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	Singleton = l
}

// Get returns the current process-wide default logger.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return Singleton
}

// Component returns a child logger tagged with the given component name,
// the convention used by every constructor in this module that accepts
// an optional *zerolog.Logger.
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}

// WithLogger returns l if non-nil, otherwise Component(fallbackName).
// Every constructor in this module that takes an optional logger uses
// this to fall back to the process-wide default.
func WithLogger(l *zerolog.Logger, fallbackName string) zerolog.Logger {
	if l != nil {
		return *l
	}
	return Component(fallbackName)
}
