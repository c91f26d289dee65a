package domain

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// capQuantile is the percentile numeric columns are capped at.
const capQuantile = 0.999

// columnMean returns the mean of the valid values and whether any existed.
func columnMean(values []NullFloat) (float64, bool) {
	present := presentValues(values)
	if len(present) == 0 {
		return 0, false
	}
	return stat.Mean(present, nil), true
}

// quantile returns the p-quantile of the valid values using linear
// interpolation between closest ranks (h = (n-1)p). A single value is its own
// quantile.
func quantile(values []NullFloat, p float64) (float64, bool) {
	sorted := presentValues(values)
	if len(sorted) == 0 {
		return 0, false
	}
	slices.Sort(sorted)

	n := len(sorted)
	if n == 1 {
		return sorted[0], true
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1], true
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i]), true
}

// round2 rounds to 2 decimals, half to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// floor2 returns the largest 2-decimal value not above v.
func floor2(v float64) float64 {
	cents := math.RoundToEven(v * 100)
	if cents/100 > v {
		cents--
	}
	return cents / 100
}

func presentValues(values []NullFloat) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Valid {
			out = append(out, v.Float64)
		}
	}
	return out
}
