package factors

import (
	"math"
	"testing"
	"time"

	"github.com/selivandex/riskpulse/pkg/series"
)

func testPanel(n int) *series.Frame {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}

	// Deterministic pseudo-returns: a common factor plus per-asset noise
	seed := uint64(42)
	next := func() float64 {
		seed = seed*6364136223846793005 + 1442695040888963407
		return float64(seed>>40)/float64(1<<24) - 0.5
	}

	frame := series.NewFrame(dates)
	common := make([]float64, n)
	for i := range common {
		common[i] = next() * 0.02
	}
	for _, ticker := range []string{"SPY", "XLK", "XLF"} {
		values := make([]float64, n)
		for i := range values {
			values[i] = common[i] + next()*0.01
		}
		frame.SetColumn(ticker, values)
	}
	return frame
}

func TestDecompose(t *testing.T) {
	const window = 10
	panel := testPanel(30)
	d := NewDecomposer(window, 0, 5, "XLK", nil)

	result, err := d.Decompose(panel)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	t.Run("one snapshot per complete window", func(t *testing.T) {
		want := panel.Len() - window + 1
		if len(result.Snapshots) != want {
			t.Errorf("expected %d snapshots, got %d", want, len(result.Snapshots))
		}
	})

	t.Run("explained variance sums to one", func(t *testing.T) {
		for _, snap := range result.Snapshots {
			var sum float64
			for _, evr := range snap.ExplainedVariance {
				sum += evr
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("date %s: EVR sum %v", snap.Date.Format("2006-01-02"), sum)
			}
		}
	})

	t.Run("eigenvalues descend", func(t *testing.T) {
		for _, snap := range result.Snapshots {
			for k := 1; k < len(snap.Eigenvalues); k++ {
				if snap.Eigenvalues[k] > snap.Eigenvalues[k-1]+1e-12 {
					t.Errorf("date %s: eigenvalues not descending: %v",
						snap.Date.Format("2006-01-02"), snap.Eigenvalues)
				}
			}
		}
	})

	t.Run("reference loading is non-negative after sign fix", func(t *testing.T) {
		refIdx := -1
		for i, ticker := range result.Tickers {
			if ticker == "XLK" {
				refIdx = i
			}
		}
		if refIdx < 0 {
			t.Fatal("reference asset missing from result")
		}
		for _, snap := range result.Snapshots {
			if snap.Loadings[refIdx][0] < 0 {
				t.Errorf("date %s: reference PC1 loading negative: %v",
					snap.Date.Format("2006-01-02"), snap.Loadings[refIdx][0])
			}
		}
	})

	t.Run("signal aligned to snapshot dates", func(t *testing.T) {
		if result.Signal.Len() != len(result.Snapshots) {
			t.Errorf("signal length %d, snapshots %d", result.Signal.Len(), len(result.Snapshots))
		}
	})
}

func TestDecomposeShortPanel(t *testing.T) {
	panel := testPanel(5)
	d := NewDecomposer(10, 0, 5, "XLK", nil)

	result, err := d.Decompose(panel)
	if err != nil {
		t.Fatalf("short panel should not error: %v", err)
	}
	if len(result.Snapshots) != 0 {
		t.Errorf("expected no snapshots for short panel, got %d", len(result.Snapshots))
	}
}

func TestDecomposeEmptyPanel(t *testing.T) {
	d := NewDecomposer(10, 0, 5, "XLK", nil)
	result, err := d.Decompose(series.NewFrame(nil))
	if err != nil {
		t.Fatalf("empty panel should not error: %v", err)
	}
	if len(result.Snapshots) != 0 {
		t.Errorf("expected no snapshots, got %d", len(result.Snapshots))
	}
}
