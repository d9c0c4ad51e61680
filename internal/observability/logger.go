package observability

import (
	"sync"

	"github.com/tphakala/docquality/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the observability package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("observability")
	})
	return serviceLogger
}
