package credit

import (
	"math"
	"testing"
	"time"

	"github.com/selivandex/riskpulse/pkg/series"
)

func testDates(n int) []time.Time {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	return dates
}

func TestExtractFromETF(t *testing.T) {
	dates := testDates(10)
	panel := series.NewFrame(dates)
	values := make([]float64, 10)
	for i := range values {
		values[i] = 0.01 * float64(i%3)
	}
	panel.SetColumn("HYG", values)

	e := NewExtractor("HYG", 5, 20, nil)
	result := e.Extract(panel, series.Series{}, dates)

	if result.Source != SourceETF {
		t.Fatalf("expected ETF source, got %s", result.Source)
	}
	if result.FallbackLevel != 0 {
		t.Errorf("expected fallback level 0, got %d", result.FallbackLevel)
	}
	if result.Series.Len() != 10 {
		t.Errorf("expected 10 observations, got %d", result.Series.Len())
	}
}

func TestExtractFallsBackToRatio(t *testing.T) {
	dates := testDates(8)
	panel := series.NewFrame(dates)
	panel.SetColumn("SPY", make([]float64, 8))

	ratio := series.New("credit_ratio", dates, []float64{1.0, 1.1, 1.2, 1.1, 1.0, 0.9, 1.0, 1.1})

	e := NewExtractor("HYG", 5, 20, nil)
	result := e.Extract(panel, ratio, dates)

	if result.Source != SourceRatio {
		t.Fatalf("expected ratio source, got %s", result.Source)
	}
	if result.FallbackLevel != 1 {
		t.Errorf("expected fallback level 1, got %d", result.FallbackLevel)
	}
}

func TestExtractZeroFallback(t *testing.T) {
	dates := testDates(6)

	// ETF column present but all missing
	panel := series.NewFrame(dates)
	nan := make([]float64, 6)
	for i := range nan {
		nan[i] = math.NaN()
	}
	panel.SetColumn("HYG", nan)

	e := NewExtractor("HYG", 5, 20, nil)
	result := e.Extract(panel, series.Series{}, dates)

	if result.Source != SourceZero {
		t.Fatalf("expected zero fallback, got %s", result.Source)
	}
	if result.FallbackLevel != 2 {
		t.Errorf("expected fallback level 2, got %d", result.FallbackLevel)
	}
	if result.Series.Len() != len(dates) {
		t.Fatalf("zero series not aligned to signal index: %d", result.Series.Len())
	}
	for i, v := range result.Series.Values {
		if v != 0 {
			t.Errorf("value %d not zero: %v", i, v)
		}
	}
}

func TestExtractNilPanel(t *testing.T) {
	dates := testDates(4)
	e := NewExtractor("HYG", 5, 20, nil)
	result := e.Extract(nil, series.Series{}, dates)
	if result.Source != SourceZero {
		t.Fatalf("expected zero fallback for nil panel, got %s", result.Source)
	}
}
