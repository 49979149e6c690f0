package math

import (
	"math"
)

// SumInts returns the sum of an integer series.
func SumInts(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

// IntsToFloats widens an integer series.
func IntsToFloats(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// RoundToInt rounds half away from zero.
func RoundToInt(x float64) int {
	return int(math.Round(x))
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
