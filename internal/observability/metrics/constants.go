// Package metrics provides constants used across metric definitions.
package metrics

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Histogram bucket parameters.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms.
	BucketStart100ms = 0.1
	// BucketStart1KB is the starting bucket for 1KB size histograms.
	BucketStart1KB = 1024.0

	BucketFactor2 = 2
	BucketFactor4 = 4

	BucketCount12 = 12
	BucketCount15 = 15
)
