package degrade

import (
	"sync"

	"github.com/tphakala/docquality/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the degrade package logger scoped to the degrade module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("degrade")
	})
	return serviceLogger
}
