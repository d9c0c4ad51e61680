package metrics

import "github.com/tphakala/docquality/internal/errors"

// categorizeError returns the error_type label for err.
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return "unknown"
}
