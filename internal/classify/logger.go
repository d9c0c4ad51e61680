package classify

import (
	"sync"

	"github.com/tphakala/docquality/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the classify package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("classify")
	})
	return serviceLogger
}
