package series

import (
	"math"
	"sort"
	"time"
)

// Series is a date-indexed float column. Dates are strictly increasing and
// unique; NaN marks a missing observation.
type Series struct {
	Name   string
	Dates  []time.Time
	Values []float64
}

// New creates a series from parallel date/value slices
func New(name string, dates []time.Time, values []float64) Series {
	return Series{Name: name, Dates: dates, Values: values}
}

// Constant creates a series holding the same value on every date
func Constant(name string, dates []time.Time, value float64) Series {
	values := make([]float64, len(dates))
	for i := range values {
		values[i] = value
	}
	return Series{Name: name, Dates: append([]time.Time(nil), dates...), Values: values}
}

// Len returns the number of observations including missing ones
func (s Series) Len() int {
	return len(s.Values)
}

// ValidCount returns the number of non-missing observations
func (s Series) ValidCount() int {
	n := 0
	for _, v := range s.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Last returns the final observation, or NaN for an empty series
func (s Series) Last() float64 {
	if len(s.Values) == 0 {
		return math.NaN()
	}
	return s.Values[len(s.Values)-1]
}

// LastValid returns the final non-missing observation
func (s Series) LastValid() float64 {
	for i := len(s.Values) - 1; i >= 0; i-- {
		if !math.IsNaN(s.Values[i]) {
			return s.Values[i]
		}
	}
	return math.NaN()
}

// Clone returns a deep copy
func (s Series) Clone() Series {
	return Series{
		Name:   s.Name,
		Dates:  append([]time.Time(nil), s.Dates...),
		Values: append([]float64(nil), s.Values...),
	}
}

// DropNA returns the series restricted to non-missing observations
func (s Series) DropNA() Series {
	dates := make([]time.Time, 0, len(s.Dates))
	values := make([]float64, 0, len(s.Values))
	for i, v := range s.Values {
		if !math.IsNaN(v) {
			dates = append(dates, s.Dates[i])
			values = append(values, v)
		}
	}
	return Series{Name: s.Name, Dates: dates, Values: values}
}

// Mean returns the mean over non-missing observations
func (s Series) Mean() float64 {
	return Mean(s.Values)
}

// Std returns the sample standard deviation over non-missing observations
func (s Series) Std() float64 {
	return Std(s.Values)
}

// Quantile returns the q-quantile over non-missing observations
// using linear interpolation
func (s Series) Quantile(q float64) float64 {
	return Quantile(s.Values, q)
}

// PctChange returns period-over-period relative change; the first
// observation and any division by zero come out missing
func (s Series) PctChange() Series {
	out := make([]float64, len(s.Values))
	for i := range out {
		if i == 0 || math.IsNaN(s.Values[i]) || math.IsNaN(s.Values[i-1]) || s.Values[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = s.Values[i]/s.Values[i-1] - 1
	}
	return Series{Name: s.Name, Dates: append([]time.Time(nil), s.Dates...), Values: out}
}

// ZScore standardizes against the mean and std of the non-missing history.
// A zero or undefined std maps everything to zero rather than infinity.
func (s Series) ZScore() Series {
	mean := s.Mean()
	std := s.Std()
	out := make([]float64, len(s.Values))
	for i, v := range s.Values {
		switch {
		case math.IsNaN(v):
			out[i] = math.NaN()
		case std == 0 || math.IsNaN(std):
			out[i] = 0
		default:
			out[i] = (v - mean) / std
		}
	}
	return Series{Name: s.Name, Dates: append([]time.Time(nil), s.Dates...), Values: out}
}

// Lag1Autocorr returns the lag-1 autocorrelation of the non-missing values
func (s Series) Lag1Autocorr() float64 {
	v := s.DropNA().Values
	if len(v) < 2 {
		return math.NaN()
	}
	return Corr(v[1:], v[:len(v)-1])
}

// Reindex maps the series onto a new date index, inserting NaN where a
// date has no observation
func (s Series) Reindex(dates []time.Time) Series {
	byDate := make(map[int64]float64, len(s.Dates))
	for i, d := range s.Dates {
		byDate[d.Unix()] = s.Values[i]
	}
	values := make([]float64, len(dates))
	for i, d := range dates {
		if v, ok := byDate[d.Unix()]; ok {
			values[i] = v
		} else {
			values[i] = math.NaN()
		}
	}
	return Series{Name: s.Name, Dates: append([]time.Time(nil), dates...), Values: values}
}

// ForwardFill replaces missing observations with the last seen value
func (s Series) ForwardFill() Series {
	out := s.Clone()
	last := math.NaN()
	for i, v := range out.Values {
		if math.IsNaN(v) {
			out.Values[i] = last
		} else {
			last = v
		}
	}
	return out
}

// BackFill replaces missing observations with the next seen value
func (s Series) BackFill() Series {
	out := s.Clone()
	next := math.NaN()
	for i := len(out.Values) - 1; i >= 0; i-- {
		if math.IsNaN(out.Values[i]) {
			out.Values[i] = next
		} else {
			next = out.Values[i]
		}
	}
	return out
}

// FillZero replaces remaining missing observations with zero
func (s Series) FillZero() Series {
	out := s.Clone()
	for i, v := range out.Values {
		if math.IsNaN(v) {
			out.Values[i] = 0
		}
	}
	return out
}

// HeadMean averages the first n non-missing observations
func (s Series) HeadMean(n int) float64 {
	v := s.DropNA().Values
	if len(v) == 0 {
		return math.NaN()
	}
	if n > len(v) {
		n = len(v)
	}
	return Mean(v[:n])
}

// TailMean averages the last n non-missing observations
func (s Series) TailMean(n int) float64 {
	v := s.DropNA().Values
	if len(v) == 0 {
		return math.NaN()
	}
	if n > len(v) {
		n = len(v)
	}
	return Mean(v[len(v)-n:])
}

// AlignIntersection restricts both series to their common dates, preserving
// date order. Returns empty series when there is no overlap.
func AlignIntersection(a, b Series) (Series, Series) {
	inB := make(map[int64]float64, len(b.Dates))
	for i, d := range b.Dates {
		inB[d.Unix()] = b.Values[i]
	}
	var dates []time.Time
	var av, bv []float64
	for i, d := range a.Dates {
		if v, ok := inB[d.Unix()]; ok {
			dates = append(dates, d)
			av = append(av, a.Values[i])
			bv = append(bv, v)
		}
	}
	return Series{Name: a.Name, Dates: dates, Values: av},
		Series{Name: b.Name, Dates: dates, Values: bv}
}

// UnionDates merges two sorted date indexes into one sorted unique index
func UnionDates(a, b []time.Time) []time.Time {
	seen := make(map[int64]time.Time, len(a)+len(b))
	for _, d := range a {
		seen[d.Unix()] = d
	}
	for _, d := range b {
		seen[d.Unix()] = d
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
