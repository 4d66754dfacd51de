package series

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// valid filters NaN observations out of a slice
func valid(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Mean returns the mean over non-missing values, NaN when empty
func Mean(values []float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// Std returns the sample standard deviation over non-missing values.
// A single observation has zero dispersion by definition here; this keeps
// one-period rolling windows finite instead of poisoning downstream math.
func Std(values []float64) float64 {
	v := valid(values)
	switch len(v) {
	case 0:
		return math.NaN()
	case 1:
		return 0
	}
	return math.Sqrt(stat.Variance(v, nil))
}

// Corr returns the Pearson correlation of two equal-length slices,
// skipping index positions where either side is missing
func Corr(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var xa, xb []float64
	for i := range a {
		if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			xa = append(xa, a[i])
			xb = append(xb, b[i])
		}
	}
	if len(xa) < 2 {
		return math.NaN()
	}
	return stat.Correlation(xa, xb, nil)
}

// Quantile returns the q-quantile over non-missing values with linear
// interpolation between order statistics
func Quantile(values []float64, q float64) float64 {
	v := valid(values)
	if len(v) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
