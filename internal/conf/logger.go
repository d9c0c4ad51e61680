package conf

import "github.com/tphakala/docquality/internal/logger"

// GetLogger returns the config package logger. It is fetched on each call
// because configuration loads before the central logger is installed.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
