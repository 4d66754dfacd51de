package series

import (
	"math"
	"testing"
	"time"
)

func dayRange(n int) []time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestFills(t *testing.T) {
	nan := math.NaN()
	s := New("x", dayRange(5), []float64{nan, 1, nan, 3, nan})

	t.Run("forward fill", func(t *testing.T) {
		got := s.ForwardFill()
		want := []float64{nan, 1, 1, 3, 3}
		for i, w := range want {
			if math.IsNaN(w) {
				if !math.IsNaN(got.Values[i]) {
					t.Errorf("index %d: expected NaN, got %v", i, got.Values[i])
				}
				continue
			}
			if got.Values[i] != w {
				t.Errorf("index %d: expected %v, got %v", i, w, got.Values[i])
			}
		}
	})

	t.Run("back fill", func(t *testing.T) {
		got := s.BackFill()
		if got.Values[0] != 1 {
			t.Errorf("expected leading gap filled with 1, got %v", got.Values[0])
		}
		if !math.IsNaN(got.Values[4]) {
			t.Errorf("expected trailing gap to stay NaN, got %v", got.Values[4])
		}
	})

	t.Run("zero fill", func(t *testing.T) {
		got := s.FillZero()
		for i, v := range got.Values {
			if math.IsNaN(v) {
				t.Errorf("index %d still NaN after zero fill", i)
			}
		}
	})
}

func TestStatistics(t *testing.T) {
	t.Run("std of single observation is zero", func(t *testing.T) {
		if got := Std([]float64{4.2}); got != 0 {
			t.Errorf("expected 0, got %v", got)
		}
	})

	t.Run("zscore of constant series is zero", func(t *testing.T) {
		s := New("flat", dayRange(4), []float64{2, 2, 2, 2})
		z := s.ZScore()
		for i, v := range z.Values {
			if v != 0 {
				t.Errorf("index %d: expected 0, got %v", i, v)
			}
		}
	})

	t.Run("quantile interpolates linearly", func(t *testing.T) {
		values := []float64{1, 2, 3, 4}
		if got := Quantile(values, 0.5); !almostEqual(got, 2.5, 1e-12) {
			t.Errorf("median: expected 2.5, got %v", got)
		}
		if got := Quantile(values, 0); got != 1 {
			t.Errorf("q0: expected 1, got %v", got)
		}
		if got := Quantile(values, 1); got != 4 {
			t.Errorf("q1: expected 4, got %v", got)
		}
	})

	t.Run("correlation skips missing pairs", func(t *testing.T) {
		a := []float64{1, 2, math.NaN(), 4, 5}
		b := []float64{2, 4, 6, 8, 10}
		if got := Corr(a, b); !almostEqual(got, 1, 1e-9) {
			t.Errorf("expected correlation 1, got %v", got)
		}
	})
}

func TestRolling(t *testing.T) {
	s := New("r", dayRange(6), []float64{1, 2, 3, 4, 5, 6})

	t.Run("mean respects min periods", func(t *testing.T) {
		got := s.RollingMean(3, 2)
		if !math.IsNaN(got.Values[0]) {
			t.Errorf("first value should be NaN, got %v", got.Values[0])
		}
		if !almostEqual(got.Values[1], 1.5, 1e-12) {
			t.Errorf("second value: expected 1.5, got %v", got.Values[1])
		}
		if !almostEqual(got.Values[5], 5, 1e-12) {
			t.Errorf("last value: expected 5, got %v", got.Values[5])
		}
	})

	t.Run("window excludes older observations", func(t *testing.T) {
		got := s.RollingMean(2, 2)
		if !almostEqual(got.Values[5], 5.5, 1e-12) {
			t.Errorf("expected 5.5, got %v", got.Values[5])
		}
	})
}

func TestAlignIntersection(t *testing.T) {
	dates := dayRange(6)
	a := New("a", dates[:4], []float64{1, 2, 3, 4})
	b := New("b", dates[2:], []float64{30, 40, 50, 60})

	gotA, gotB := AlignIntersection(a, b)
	if gotA.Len() != 2 || gotB.Len() != 2 {
		t.Fatalf("expected 2 common dates, got %d/%d", gotA.Len(), gotB.Len())
	}
	if gotA.Values[0] != 3 || gotB.Values[0] != 30 {
		t.Errorf("first common row mismatch: %v / %v", gotA.Values[0], gotB.Values[0])
	}
}

func TestFrame(t *testing.T) {
	dates := dayRange(4)

	t.Run("merge outer extends the index", func(t *testing.T) {
		f := NewFrame(dates[:2])
		f.SetColumn("x", []float64{1, 2})
		f.MergeOuter("y", New("y", dates[1:3], []float64{20, 30}))

		if f.Len() != 3 {
			t.Fatalf("expected 3 rows after outer merge, got %d", f.Len())
		}
		if !math.IsNaN(f.At(2, "x")) {
			t.Errorf("x should be missing on the new date")
		}
		if f.At(1, "y") != 20 {
			t.Errorf("y misaligned: got %v", f.At(1, "y"))
		}
	})

	t.Run("drop na rows keeps complete rows only", func(t *testing.T) {
		f := NewFrame(dates)
		f.SetColumn("x", []float64{1, math.NaN(), 3, 4})
		f.SetColumn("y", []float64{10, 20, math.NaN(), 40})

		clean := f.DropNARows()
		if clean.Len() != 2 {
			t.Fatalf("expected 2 complete rows, got %d", clean.Len())
		}
		if clean.At(0, "x") != 1 || clean.At(1, "y") != 40 {
			t.Errorf("wrong rows survived")
		}
	})

	t.Run("slice date range", func(t *testing.T) {
		f := NewFrame(dates)
		f.SetColumn("x", []float64{1, 2, 3, 4})

		got := f.SliceDateRange(&dates[1], &dates[2])
		if got.Len() != 2 {
			t.Fatalf("expected 2 rows, got %d", got.Len())
		}
		if got.At(0, "x") != 2 {
			t.Errorf("expected slice to start at 2, got %v", got.At(0, "x"))
		}
	})
}

func TestPctChange(t *testing.T) {
	s := New("p", dayRange(3), []float64{100, 110, 99})
	got := s.PctChange()
	if !math.IsNaN(got.Values[0]) {
		t.Errorf("first change should be missing")
	}
	if !almostEqual(got.Values[1], 0.1, 1e-12) {
		t.Errorf("expected 0.1, got %v", got.Values[1])
	}
	if !almostEqual(got.Values[2], -0.1, 1e-12) {
		t.Errorf("expected -0.1, got %v", got.Values[2])
	}
}
