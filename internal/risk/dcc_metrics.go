package risk

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/internal/aggregator"
	"github.com/selivandex/riskpulse/internal/dcc"
	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

const (
	minDCCPanelRows     = 50
	stressQuantile      = 0.8
	highlyCorrelatedAt  = 0.7
	moderateCorrelation = 0.4
	extremePairAbsCorr  = 0.8
)

type dccMetricsResult struct {
	correlation *float64
	regime      *models.DCCRegimeAnalysis
	pairs       map[string]models.PairCorrelationStats
}

// computeDCCMetrics fits the correlation model once per engine lifetime
// and summarizes the pairwise dynamic correlations. Every failure in here
// degrades to partial or empty metrics, never aborts the pipeline.
func (e *Engine) computeDCCMetrics(ctx context.Context, aggregated, market *series.Frame) *dccMetricsResult {
	out := &dccMetricsResult{pairs: map[string]models.PairCorrelationStats{}}

	panel := restrictToTickers(market, e.cfg.Universe.Tickers).DropNARows()
	if panel.Len() < minDCCPanelRows || len(panel.Columns()) < 2 {
		e.log.Warn("insufficient panel for correlation model",
			zap.Int("rows", panel.Len()),
			zap.Int("assets", len(panel.Columns())),
		)
		return out
	}

	// Stress indicator from the systemic score's own upper tail
	systemic := aggregated.Column(aggregator.ColSystemic)
	threshold := systemic.Quantile(stressQuantile)
	stressValues := make([]float64, systemic.Len())
	for i, v := range systemic.Values {
		if !math.IsNaN(v) && v > threshold {
			stressValues[i] = 1
		}
	}
	stress := series.New("stress", aggregated.Dates(), stressValues)

	e.ensureFitted(ctx, panel, stress)

	if e.dccModel.State() != dcc.StateFitted {
		// Unconditional mean correlation as the degraded signal
		if avg, ok := meanPairwiseCorrelation(panel); ok {
			out.correlation = models.Float64Ptr(avg)
		}
		return out
	}

	tickers := e.dccModel.Tickers()
	stressOnPanel := stress.Reindex(panel.Dates()).FillZero()
	for i := 0; i < len(tickers); i++ {
		for j := i + 1; j < len(tickers); j++ {
			pair := tickers[i] + "_" + tickers[j]
			corr, err := e.dccModel.ComputePairCorrelation(tickers[i], tickers[j])
			if err != nil {
				e.log.Warn("pair correlation failed",
					zap.String("pair", pair),
					zap.Error(err),
				)
				continue
			}
			stats := pairStats(corr, stressOnPanel)
			if math.IsNaN(stats.Current) {
				e.log.Warn("pair correlation degenerate, skipping", zap.String("pair", pair))
				continue
			}
			out.pairs[pair] = stats
		}
	}

	if len(out.pairs) > 0 {
		currents := make([]float64, 0, len(out.pairs))
		contrasts := make([]float64, 0, len(out.pairs))
		for _, stats := range out.pairs {
			currents = append(currents, stats.Current)
			contrasts = append(contrasts, stats.RegimeContrast.Contrast)
		}
		avg := series.Mean(currents)
		out.correlation = models.Float64Ptr(avg)
		out.regime = analyzeRegimes(currents, contrasts, stressOnPanel)
	}
	return out
}

// ensureFitted triggers the one-time model fit, bounded by the configured
// timeout so a stalled optimization cannot wedge the pipeline
func (e *Engine) ensureFitted(ctx context.Context, panel *series.Frame, stress series.Series) {
	e.dccMu.Lock()
	defer e.dccMu.Unlock()

	if e.dccModel.State() == dcc.StateFitted {
		return
	}

	fitCtx, cancel := context.WithTimeout(ctx, e.cfg.Risk.FitTimeout)
	defer cancel()
	if err := e.dccModel.Fit(fitCtx, panel, stress.Reindex(panel.Dates()).FillZero()); err != nil {
		e.log.Warn("correlation model fit failed", zap.Error(err))
	}
}

func pairStats(corr series.Series, stress series.Series) models.PairCorrelationStats {
	clean := corr.DropNA()

	current := corr.Last()
	if math.IsNaN(current) {
		current = corr.LastValid()
	}

	trend := 0.0
	if clean.Len() >= 10 {
		trend = clean.TailMean(5) - clean.HeadMean(5)
	}

	return models.PairCorrelationStats{
		Current:        current,
		Mean:           clean.Mean(),
		Std:            clean.Std(),
		Trend:          trend,
		RegimeContrast: regimeContrast(corr, stress),
	}
}

// regimeContrast splits the correlation observations by the aligned
// stress indicator and compares the two regimes
func regimeContrast(corr series.Series, stress series.Series) models.RegimeContrast {
	aligned := stress.Reindex(corr.Dates).FillZero()

	var stressVals, normalVals []float64
	for i, v := range corr.Values {
		if math.IsNaN(v) {
			continue
		}
		if aligned.Values[i] > 0.5 {
			stressVals = append(stressVals, v)
		} else {
			normalVals = append(normalVals, v)
		}
	}

	out := models.RegimeContrast{}
	if len(stressVals) > 0 {
		out.StressMean = series.Mean(stressVals)
		out.StressVol = series.Std(stressVals)
	}
	if len(normalVals) > 0 {
		out.NormalMean = series.Mean(normalVals)
		out.NormalVol = series.Std(normalVals)
	}
	if len(stressVals) > 0 && len(normalVals) > 0 {
		out.Contrast = out.StressMean - out.NormalMean
	}
	return out
}

func analyzeRegimes(currents, contrasts []float64, stress series.Series) *models.DCCRegimeAnalysis {
	avg := series.Mean(currents)

	regime := models.RegimeLowCorrelation
	if avg > highlyCorrelatedAt {
		regime = models.RegimeHighlyCorrelated
	} else if avg > moderateCorrelation {
		regime = models.RegimeModeratelyCorrelated
	}

	extreme := 0
	for _, c := range currents {
		if math.Abs(c) > extremePairAbsCorr {
			extreme++
		}
	}

	return &models.DCCRegimeAnalysis{
		CurrentRegime:             regime,
		AverageCorrelation:        avg,
		CorrelationDispersion:     series.Std(currents),
		StressRegime:              stress.Last() > 0.5,
		StressCorrelationContrast: series.Mean(contrasts),
		PairCount:                 len(currents),
		ExtremePairs:              extreme,
	}
}

// meanPairwiseCorrelation is the unfit fallback: the average Pearson
// correlation across all asset pairs
func meanPairwiseCorrelation(panel *series.Frame) (float64, bool) {
	tickers := panel.Columns()
	var sum float64
	count := 0
	for i := 0; i < len(tickers); i++ {
		for j := i + 1; j < len(tickers); j++ {
			c := series.Corr(panel.Column(tickers[i]).Values, panel.Column(tickers[j]).Values)
			if !math.IsNaN(c) {
				sum += c
				count++
			}
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
