// Package metrics provides the Prometheus collectors of the docquality service.
package metrics

import "github.com/tphakala/docquality/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("metrics")
