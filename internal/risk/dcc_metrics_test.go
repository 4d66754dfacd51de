package risk

import (
	"context"
	"testing"
	"time"

	"github.com/selivandex/riskpulse/internal/dcc"
	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

type corrRNG struct{ seed uint64 }

func (g *corrRNG) next() float64 {
	g.seed = g.seed*6364136223846793005 + 1442695040888963407
	return float64(g.seed>>40)/float64(1<<24) - 0.5
}

func (g *corrRNG) gauss() float64 {
	var sum float64
	for i := 0; i < 12; i++ {
		sum += g.next() + 0.5
	}
	return sum - 6
}

// jumpPanel makes two assets independent in the first half and tightly
// coupled in the second, with a matching stress indicator
func jumpPanel(n int) (*series.Frame, series.Series) {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	g := &corrRNG{seed: 99}
	a := make([]float64, n)
	b := make([]float64, n)
	regime := make([]float64, n)
	for i := 0; i < n; i++ {
		common := g.gauss()
		ea := g.gauss()
		eb := g.gauss()
		if i < n/2 {
			a[i] = ea * 0.01
			b[i] = eb * 0.01
		} else {
			a[i] = (0.95*common + 0.05*ea) * 0.01
			b[i] = (0.95*common + 0.05*eb) * 0.01
			regime[i] = 1
		}
	}
	frame := series.NewFrame(dates)
	frame.SetColumn("SPY", a)
	frame.SetColumn("HYG", b)
	return frame, series.New("regime", dates, regime)
}

func TestAnalyzeRegimesLabels(t *testing.T) {
	stress := series.New("stress",
		[]time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		[]float64{0},
	)

	cases := []struct {
		name     string
		currents []float64
		want     models.CorrelationRegime
	}{
		{"highly correlated", []float64{0.8, 0.75}, models.RegimeHighlyCorrelated},
		{"moderately correlated", []float64{0.5, 0.55}, models.RegimeModeratelyCorrelated},
		{"low correlation", []float64{0.1, 0.2}, models.RegimeLowCorrelation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := analyzeRegimes(tc.currents, nil, stress)
			if analysis.CurrentRegime != tc.want {
				t.Errorf("regime = %s, want %s", analysis.CurrentRegime, tc.want)
			}
			if analysis.PairCount != len(tc.currents) {
				t.Errorf("pair count = %d, want %d", analysis.PairCount, len(tc.currents))
			}
		})
	}
}

func TestRegimeLabelTracksCorrelationJump(t *testing.T) {
	panel, regime := jumpPanel(300)

	model := dcc.NewModel(0, 30, 1.5, nil)
	if err := model.Fit(context.Background(), panel, regime); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	corr, err := model.ComputePairCorrelation("SPY", "HYG")
	if err != nil {
		t.Fatalf("ComputePairCorrelation failed: %v", err)
	}

	stats := pairStats(corr, regime)
	analysis := analyzeRegimes(
		[]float64{stats.Current},
		[]float64{stats.RegimeContrast.Contrast},
		regime,
	)

	if analysis.CurrentRegime != models.RegimeHighlyCorrelated {
		t.Errorf("regime after correlation jump = %s, want %s",
			analysis.CurrentRegime, models.RegimeHighlyCorrelated)
	}
	if !analysis.StressRegime {
		t.Error("stress regime not flagged on stressed final row")
	}
	if analysis.StressCorrelationContrast <= 0 {
		t.Errorf("stress contrast = %v, want positive", analysis.StressCorrelationContrast)
	}
}
