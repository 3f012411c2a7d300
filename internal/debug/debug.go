// Package debug traces protocol traffic when $WAYLAND_DEBUG is set to
// a positive number, similar to libwayland.
package debug

import (
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

var enabled bool

var logger atomic.Pointer[zap.SugaredLogger]

func init() {
	debugLevel, err := strconv.ParseInt(os.Getenv("WAYLAND_DEBUG"), 10, 0)
	if err != nil {
		return
	}
	enabled = debugLevel > 0
}

// Enabled reports whether tracing is on. Callers can use it to avoid
// formatting messages that would be thrown away.
func Enabled() bool {
	return enabled
}

// SetLogger sets the logger that traces are written to. Until it is
// called traces go to zap's global logger.
func SetLogger(log *zap.SugaredLogger) {
	logger.Store(log)
}

func Printf(str string, args ...any) {
	if !enabled {
		return
	}

	log := logger.Load()
	if log == nil {
		log = zap.S()
	}
	log.Infof(str, args...)
}
