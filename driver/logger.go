package driver

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-component-ld/adapter"
	"github.com/wippyai/wasm-component-ld/argv"
	"github.com/wippyai/wasm-component-ld/lld"
	"github.com/wippyai/wasm-component-ld/witmeta"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the package's logger.
// This must be called before Run.
func SetLogger(l *zap.Logger) {
	logger = l
}

// EnableVerboseLogging installs a development logger on every package
// that reports link progress. Output goes to stderr, keeping stdout
// clear for the external linker's own chatter.
func EnableVerboseLogging() {
	base, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	SetLogger(base.Named("driver"))
	argv.SetLogger(base.Named("argv"))
	lld.SetLogger(base.Named("lld"))
	adapter.SetLogger(base.Named("adapter"))
	witmeta.SetLogger(base.Named("witmeta"))
}
