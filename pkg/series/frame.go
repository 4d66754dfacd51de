package series

import (
	"math"
	"time"
)

// Frame is a date-indexed table of named float columns sharing one sorted,
// unique date index. It backs both the return panel and the aggregated
// signal table.
type Frame struct {
	dates   []time.Time
	order   []string
	columns map[string][]float64
}

// NewFrame creates an empty frame over the given date index
func NewFrame(dates []time.Time) *Frame {
	return &Frame{
		dates:   append([]time.Time(nil), dates...),
		columns: make(map[string][]float64),
	}
}

// Dates returns the date index
func (f *Frame) Dates() []time.Time {
	return f.dates
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.dates)
}

// Columns returns column names in insertion order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.order...)
}

// HasColumn reports whether the named column exists
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// SetColumn inserts or replaces a column already aligned to the frame index.
// Mismatched lengths are treated as a programming error and ignored.
func (f *Frame) SetColumn(name string, values []float64) {
	if len(values) != len(f.dates) {
		return
	}
	if _, ok := f.columns[name]; !ok {
		f.order = append(f.order, name)
	}
	f.columns[name] = append([]float64(nil), values...)
}

// SetSeries reindexes the series onto the frame index and inserts it
func (f *Frame) SetSeries(name string, s Series) {
	f.SetColumn(name, s.Reindex(f.dates).Values)
}

// Column returns the named column as a series; missing names come back
// as an all-NaN column
func (f *Frame) Column(name string) Series {
	values, ok := f.columns[name]
	if !ok {
		values = make([]float64, len(f.dates))
		for i := range values {
			values[i] = math.NaN()
		}
	}
	return Series{
		Name:   name,
		Dates:  append([]time.Time(nil), f.dates...),
		Values: append([]float64(nil), values...),
	}
}

// At returns the value of a column at row i
func (f *Frame) At(i int, name string) float64 {
	values, ok := f.columns[name]
	if !ok || i < 0 || i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

// Clone returns a deep copy
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.dates)
	for _, name := range f.order {
		out.SetColumn(name, f.columns[name])
	}
	return out
}

// MergeOuter extends the frame to the union of its index and the series
// dates, reindexing every existing column, then inserts the series
func (f *Frame) MergeOuter(name string, s Series) {
	union := UnionDates(f.dates, s.Dates)
	if len(union) != len(f.dates) {
		reindexed := NewFrame(union)
		for _, col := range f.order {
			reindexed.SetColumn(col, f.Column(col).Reindex(union).Values)
		}
		*f = *reindexed
	}
	f.SetSeries(name, s)
}

// DropNARows removes every row where any of the named columns (all
// columns when none are named) is missing
func (f *Frame) DropNARows(names ...string) *Frame {
	if len(names) == 0 {
		names = f.order
	}
	keep := make([]int, 0, len(f.dates))
	for i := range f.dates {
		ok := true
		for _, name := range names {
			if math.IsNaN(f.At(i, name)) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}
	dates := make([]time.Time, len(keep))
	for j, i := range keep {
		dates[j] = f.dates[i]
	}
	out := NewFrame(dates)
	for _, name := range f.order {
		values := make([]float64, len(keep))
		for j, i := range keep {
			values[j] = f.columns[name][i]
		}
		out.SetColumn(name, values)
	}
	return out
}

// FillGaps resolves residual gaps per column: forward fill, then back
// fill, then zero fill
func (f *Frame) FillGaps() {
	for _, name := range f.order {
		filled := f.Column(name).ForwardFill().BackFill().FillZero()
		f.columns[name] = filled.Values
	}
}

// SliceDateRange restricts the frame to [start, end]; nil bounds are open
func (f *Frame) SliceDateRange(start, end *time.Time) *Frame {
	keep := make([]int, 0, len(f.dates))
	for i, d := range f.dates {
		if start != nil && d.Before(*start) {
			continue
		}
		if end != nil && d.After(*end) {
			continue
		}
		keep = append(keep, i)
	}
	dates := make([]time.Time, len(keep))
	for j, i := range keep {
		dates[j] = f.dates[i]
	}
	out := NewFrame(dates)
	for _, name := range f.order {
		values := make([]float64, len(keep))
		for j, i := range keep {
			values[j] = f.columns[name][i]
		}
		out.SetColumn(name, values)
	}
	return out
}
