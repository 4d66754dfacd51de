package volatility

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

func testReturns(n int) series.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	values := make([]float64, n)
	seed := uint64(7)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
		seed = seed*6364136223846793005 + 1442695040888963407
		values[i] = (float64(seed>>40)/float64(1<<24) - 0.5) * 0.02
	}
	return series.New("ret", dates, values)
}

func TestExcessVolatility(t *testing.T) {
	f := NewForecaster(nil)

	t.Run("rejects short input", func(t *testing.T) {
		_, err := f.ExcessVolatility(testReturns(10))
		if !errors.Is(err, models.ErrDataInsufficiency) {
			t.Fatalf("expected ErrDataInsufficiency, got %v", err)
		}
	})

	t.Run("standardized gap has near-zero mean", func(t *testing.T) {
		result, err := f.ExcessVolatility(testReturns(120))
		if err != nil {
			t.Fatalf("ExcessVolatility failed: %v", err)
		}
		var sum float64
		var count int
		for _, v := range result.ZScore.Values {
			if !math.IsNaN(v) {
				sum += v
				count++
			}
		}
		if count < minExcessObs {
			t.Fatalf("too few valid z-scores: %d", count)
		}
		if math.Abs(sum/float64(count)) > 1e-6 {
			t.Errorf("z-score mean not near zero: %v", sum/float64(count))
		}
	})

	t.Run("constant volatility yields zero z-scores", func(t *testing.T) {
		// A flat return series has identical volatility at every horizon:
		// the forecast matches realized exactly, so the standardized gap
		// is zero on every valid row. The single-observation daily window
		// relies on a one-element std of 0 rather than NaN.
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		n := 120
		dates := make([]time.Time, n)
		values := make([]float64, n)
		for i := range dates {
			dates[i] = start.AddDate(0, 0, i)
			values[i] = 0.01
		}

		result, err := f.ExcessVolatility(series.New("ret", dates, values))
		if err != nil {
			t.Fatalf("ExcessVolatility failed: %v", err)
		}
		var count int
		for i, z := range result.ZScore.Values {
			if math.IsNaN(z) {
				continue
			}
			count++
			if math.Abs(z) > 1e-12 {
				t.Fatalf("z-score at row %d = %v, want 0", i, z)
			}
			if e := result.Excess.Values[i]; math.Abs(e) > 1e-12 {
				t.Fatalf("excess at row %d = %v, want 0", i, e)
			}
		}
		if count < minExcessObs {
			t.Fatalf("too few valid z-scores: %d", count)
		}
	})

	t.Run("excess is realized minus forecast", func(t *testing.T) {
		result, err := f.ExcessVolatility(testReturns(120))
		if err != nil {
			t.Fatalf("ExcessVolatility failed: %v", err)
		}
		for i := range result.Excess.Values {
			e := result.Excess.Values[i]
			r := result.Realized.Values[i]
			fc := result.Forecast.Values[i]
			if math.IsNaN(e) {
				continue
			}
			if math.Abs(e-(r-fc)) > 1e-12 {
				t.Fatalf("row %d: excess %v != realized %v - forecast %v", i, e, r, fc)
			}
		}
	})
}

func TestFitRegression(t *testing.T) {
	f := NewForecaster(nil)

	t.Run("rejects short input", func(t *testing.T) {
		_, err := f.FitRegression(testReturns(20))
		if !errors.Is(err, models.ErrDataInsufficiency) {
			t.Fatalf("expected ErrDataInsufficiency, got %v", err)
		}
	})

	t.Run("fits with all coefficients", func(t *testing.T) {
		reg, err := f.FitRegression(testReturns(200))
		if err != nil {
			t.Fatalf("FitRegression failed: %v", err)
		}
		for _, name := range []string{"const", "RV_d", "RV_w", "RV_m"} {
			if _, ok := reg.Coefficients[name]; !ok {
				t.Errorf("missing coefficient %s", name)
			}
		}
		if reg.R2 < -1e-9 || reg.R2 > 1+1e-9 {
			t.Errorf("R2 out of range: %v", reg.R2)
		}
		if reg.Fitted.Len() != reg.Residuals.Len() {
			t.Errorf("fitted/residual length mismatch: %d vs %d", reg.Fitted.Len(), reg.Residuals.Len())
		}
	})
}
