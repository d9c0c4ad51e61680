package quality

import (
	"sync"

	"github.com/tphakala/docquality/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the quality package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("quality")
	})
	return serviceLogger
}
