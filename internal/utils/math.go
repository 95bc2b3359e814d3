package utils

import "math"

// Round rounds to two decimal places so log fields stay readable
func Round(val float64) float64 {
	// math.Round rounds half away from zero for negative values too
	return math.Round(val*100) / 100
}

// MB converts a byte count to megabytes, rounded like Round
func MB(bytes uint64) float64 {
	return Round(float64(bytes) / (1 << 20))
}
