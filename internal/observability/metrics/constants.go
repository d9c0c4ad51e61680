package metrics

import "time"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Histogram bucket configuration.
const (
	// BucketStart1ms starts 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart10ms starts 10ms histograms.
	BucketStart10ms = 0.01
	// BucketStart100B starts byte size histograms.
	BucketStart100B = 100.0

	BucketFactor2  = 2
	BucketFactor10 = 10

	BucketCount6  = 6
	BucketCount8  = 8
	BucketCount10 = 10
	BucketCount12 = 12
	BucketCount15 = 15
)

// ShutdownTimeout bounds graceful shutdown of metric consumers.
const ShutdownTimeout = 5 * time.Second
