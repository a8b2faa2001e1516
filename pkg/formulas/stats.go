package formulas

import (
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// CumulativeSum returns the running total of a series. Feeding it
// per-trade pnl values yields the realized equity curve.
func CumulativeSum(data []float64) []float64 {
	out := make([]float64, len(data))
	total := 0.0
	for i, v := range data {
		total += v
		out[i] = total
	}
	return out
}
