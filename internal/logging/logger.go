// Package logging provides the single coarse, level-tagged sink the
// engine and its collaborators log through. It never exposes *zap.Logger
// directly so that swapping the sink never touches callers.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	global = l.Sugar()
}

// SetGlobal swaps the process-wide logger. Tests and embedders use this to
// inject their own sink (an observer core, a dev logger, a no-op logger)
// without the engine or httpx packages ever importing zap themselves.
func SetGlobal(l *zap.SugaredLogger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Warnw logs msg at warn level with structured key/value pairs.
func Warnw(msg string, keysAndValues ...interface{}) {
	current().Warnw(msg, keysAndValues...)
}

// Infow logs msg at info level with structured key/value pairs.
func Infow(msg string, keysAndValues ...interface{}) {
	current().Infow(msg, keysAndValues...)
}
