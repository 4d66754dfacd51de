package series

import (
	"math"
	"time"
)

// rollingApply evaluates fn over trailing windows of at most window
// observations, emitting NaN until minPeriods non-missing values are seen
func (s Series) rollingApply(window, minPeriods int, fn func(win []float64) float64) Series {
	if minPeriods < 1 {
		minPeriods = 1
	}
	out := make([]float64, len(s.Values))
	for i := range s.Values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		win := valid(s.Values[start : i+1])
		if len(win) < minPeriods {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(win)
	}
	return Series{Name: s.Name, Dates: append([]time.Time(nil), s.Dates...), Values: out}
}

// RollingMean is the trailing-window mean with a minimum observation count
func (s Series) RollingMean(window, minPeriods int) Series {
	return s.rollingApply(window, minPeriods, Mean)
}

// RollingStd is the trailing-window sample standard deviation
func (s Series) RollingStd(window, minPeriods int) Series {
	return s.rollingApply(window, minPeriods, Std)
}

// RollingQuantile is the trailing-window q-quantile
func (s Series) RollingQuantile(window, minPeriods int, q float64) Series {
	return s.rollingApply(window, minPeriods, func(win []float64) float64 {
		return Quantile(win, q)
	})
}

// RollingCorr computes the trailing-window correlation with another series
// sharing the same date index
func (s Series) RollingCorr(other Series, window, minPeriods int) Series {
	out := make([]float64, len(s.Values))
	for i := range s.Values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var xa, xb []float64
		for j := start; j <= i; j++ {
			if !math.IsNaN(s.Values[j]) && !math.IsNaN(other.Values[j]) {
				xa = append(xa, s.Values[j])
				xb = append(xb, other.Values[j])
			}
		}
		if len(xa) < minPeriods || len(xa) < 2 {
			out[i] = math.NaN()
			continue
		}
		out[i] = Corr(xa, xb)
	}
	return Series{Name: s.Name, Dates: append([]time.Time(nil), s.Dates...), Values: out}
}
