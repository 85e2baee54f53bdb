// Package abort terminates the process on defects that cannot be unwound
// safely, such as a double release of a foreign value handle.
package abort

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	handler = defaultHandler
)

func defaultHandler(err error) {
	logger := zap.L()
	if !logger.Core().Enabled(zapcore.FatalLevel) {
		// Global logger not configured; the diagnostic must still reach stderr.
		logger = zap.Must(zap.NewProduction())
	}
	logger.Fatal("unrecoverable exchange defect", zap.Error(err))
}

// Now reports err to the abort handler. The default handler logs the
// diagnostic and exits the process; it does not return.
func Now(err error) {
	mu.RLock()
	h := handler
	mu.RUnlock()
	h(err)
}

// SetHandler replaces the handler invoked by Now and returns the previous
// one. Passing nil restores the default.
func SetHandler(h func(error)) func(error) {
	mu.Lock()
	defer mu.Unlock()
	prev := handler
	if h == nil {
		h = defaultHandler
	}
	handler = h
	return prev
}
