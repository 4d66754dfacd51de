package risk

import (
	"math"
	"time"

	"github.com/selivandex/riskpulse/internal/aggregator"
	"github.com/selivandex/riskpulse/internal/credit"
	"github.com/selivandex/riskpulse/internal/factors"
	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

const (
	extremeSignalAbs  = 2.0
	regimeHighAt      = 1.0
	regimeMediumAt    = 0.5
	dccZScoreCenter   = 0.5
	dccZScoreScale    = 0.2
	regimeWeightSys   = 0.4
	regimeWeightPCA   = 0.25
	regimeWeightCred  = 0.2
	regimeWeightDCC   = 0.15
	spreadEstWindow   = 20
	macroVolWindow    = 30
	trendWindow       = 10
	minForecastPoints = 5
)

var coreColumns = map[string]bool{
	aggregator.ColSystemic: true,
	aggregator.ColPCA:      true,
	aggregator.ColCredit:   true,
}

func (e *Engine) assembleSnapshot(
	aggregated *series.Frame,
	pcaResult *factors.Result,
	creditResult *credit.Result,
	dccMetrics *dccMetricsResult,
	quantileSummary *models.QuantileSummary,
	opts Options,
) *models.RiskMetricsSnapshot {
	systemic := aggregated.Column(aggregator.ColSystemic)
	pca := aggregated.Column(aggregator.ColPCA)
	creditCol := aggregated.Column(aggregator.ColCredit)

	snapshot := &models.RiskMetricsSnapshot{
		ID:        newSnapshotID(),
		Timestamp: time.Now().UTC(),

		SystemicRisk: systemic.Last(),
		SystemicMean: systemic.Mean(),
		SystemicStd:  systemic.Std(),

		DCCCorrelation:    dccMetrics.correlation,
		DCCRegimeAnalysis: dccMetrics.regime,
		PairCorrelations:  dccMetrics.pairs,

		QuantileSummary: quantileSummary,
		DataPoints:      aggregated.Len(),
		Source:          "risk_engine",
	}

	if pcaResult != nil {
		snapshot.PCAVariance = pcaResult.LatestExplainedVariance()
	}

	snapshot.SignalAnalysis = e.analyzeSignals(aggregated, snapshot)
	snapshot.ComponentAnalysis = componentAnalysis(systemic, pca, creditCol, dccMetrics)
	snapshot.RiskLevel, snapshot.RegimeDetails = classifyRegime(systemic, pca, creditCol, dccMetrics)

	snapshot.CreditSpread = spreadEstimate(systemic)
	e.fillMacroMetrics(snapshot, aggregated, systemic)
	snapshot.ForecastNextRisk = forecastNextRisk(systemic)

	dates := aggregated.Dates()
	snapshot.DateRange = models.DateRange{
		Days:        opts.Days,
		StartDate:   opts.StartDate,
		EndDate:     opts.EndDate,
		ActualStart: dates[0],
		ActualEnd:   dates[len(dates)-1],
	}
	snapshot.AvailableSignals = aggregated.Columns()

	if creditResult != nil {
		snapshot.CreditSource = string(creditResult.Source)
	}
	return snapshot
}

// analyzeSignals summarizes every non-core signal column and lifts the
// well-known ones into their dedicated snapshot fields
func (e *Engine) analyzeSignals(aggregated *series.Frame, snapshot *models.RiskMetricsSnapshot) map[string]models.SignalStats {
	analysis := make(map[string]models.SignalStats)

	for _, name := range aggregated.Columns() {
		if coreColumns[name] {
			continue
		}
		col := aggregated.Column(name)
		if col.ValidCount() == 0 {
			continue
		}
		current := col.Last()
		stats := models.SignalStats{
			Current:   current,
			Mean:      col.Mean(),
			Std:       col.Std(),
			IsExtreme: math.Abs(current) > extremeSignalAbs,
		}
		analysis[name] = stats

		switch name {
		case aggregator.ColHARExcessVolZ:
			snapshot.HARExcessVolZ = models.Float64Ptr(current)
		case aggregator.ColDCCCorr:
			if snapshot.DCCCorrelation == nil {
				snapshot.DCCCorrelation = models.Float64Ptr(current)
			}
		case aggregator.ColQuantileSignal:
			snapshot.QuantileSignal = models.Float64Ptr(current)
		case aggregator.ColCreditSpreadChange:
			snapshot.CreditSpreadChange = models.Float64Ptr(current)
		case aggregator.ColVIXChange:
			snapshot.VIXChange = models.Float64Ptr(current)
		case aggregator.ColIsWarning:
			snapshot.CompositeWarning = current > 0.5
		case aggregator.ColCompositeScore:
			snapshot.CompositeRiskScore = models.Float64Ptr(current)
		}
	}
	return analysis
}

func componentAnalysis(systemic, pca, creditCol series.Series, dccMetrics *dccMetricsResult) models.ComponentAnalysis {
	analysis := models.ComponentAnalysis{
		CorrelationMatrix: correlationMatrix(map[string]series.Series{
			aggregator.ColSystemic: systemic,
			aggregator.ColPCA:      pca,
			aggregator.ColCredit:   creditCol,
		}),
		CurrentPCA:    pca.Last(),
		CurrentCredit: creditCol.Last(),
	}

	// Mean component share of the systemic score, defined only when the
	// score never touches zero
	if noZeros(systemic) {
		analysis.PCAContribution = meanRatio(pca, systemic)
		analysis.CreditContribution = meanRatio(creditCol, systemic)
	}

	if v := pca.PctChange().Std(); !math.IsNaN(v) {
		analysis.PCAVolatility = v
	}
	if v := creditCol.PctChange().Std(); !math.IsNaN(v) {
		analysis.CreditVolatility = v
	}
	if pca.Len() >= trendWindow {
		analysis.PCATrend = pca.TailMean(trendWindow) - pca.HeadMean(trendWindow)
	}
	if creditCol.Len() >= trendWindow {
		analysis.CreditTrend = creditCol.TailMean(trendWindow) - creditCol.HeadMean(trendWindow)
	}

	if dccMetrics.correlation != nil {
		analysis.DCCCorrelation = dccMetrics.correlation
	}
	if dccMetrics.regime != nil {
		analysis.DCCRegime = dccMetrics.regime.CurrentRegime
		analysis.DCCStressContrast = models.Float64Ptr(dccMetrics.regime.StressCorrelationContrast)
	}
	return analysis
}

// classifyRegime combines standardized component readings into a weighted
// score. A highly correlated market forces the high level regardless of
// the score.
func classifyRegime(systemic, pca, creditCol series.Series, dccMetrics *dccMetricsResult) (models.RiskLevel, models.RegimeDetails) {
	zOf := func(s series.Series) float64 {
		std := s.Std()
		if std == 0 || math.IsNaN(std) {
			return 0
		}
		return (s.Last() - s.Mean()) / std
	}

	z := models.ComponentZScores{
		Systemic: zOf(systemic),
		PCA:      zOf(pca),
		Credit:   zOf(creditCol),
	}
	if dccMetrics.correlation != nil {
		z.DCC = (*dccMetrics.correlation - dccZScoreCenter) / dccZScoreScale
	}

	score := regimeWeightSys*z.Systemic + regimeWeightPCA*z.PCA +
		regimeWeightCred*z.Credit + regimeWeightDCC*z.DCC

	forcedHigh := dccMetrics.regime != nil &&
		dccMetrics.regime.CurrentRegime == models.RegimeHighlyCorrelated

	level := models.RiskLow
	switch {
	case score > regimeHighAt || forcedHigh:
		level = models.RiskHigh
	case score > regimeMediumAt:
		level = models.RiskMedium
	}

	details := models.RegimeDetails{
		RegimeScore:      score,
		ComponentZScores: z,
		CurrentPCA:       pca.Last(),
		CurrentCredit:    creditCol.Last(),
		Thresholds: models.RegimeThresholds{
			High:   regimeHighAt,
			Medium: regimeMediumAt,
		},
	}
	return level, details
}

// spreadEstimate proxies the credit spread with the trailing volatility of
// the systemic score's relative changes
func spreadEstimate(systemic series.Series) *float64 {
	rolling := systemic.PctChange().RollingStd(spreadEstWindow, spreadEstWindow)
	last := rolling.LastValid()
	if math.IsNaN(last) {
		return nil
	}
	return models.Float64Ptr(last)
}

// fillMacroMetrics lifts oil/fx from the latest aggregated row and adds
// the medium-horizon volatility of the systemic score
func (e *Engine) fillMacroMetrics(snapshot *models.RiskMetricsSnapshot, aggregated *series.Frame, systemic series.Series) {
	if aggregated.HasColumn(aggregator.ColOilReturn) {
		if v := aggregated.Column(aggregator.ColOilReturn).Last(); !math.IsNaN(v) {
			snapshot.MacroOil = models.Float64Ptr(v)
		}
	}
	if aggregated.HasColumn(aggregator.ColFXChange) {
		if v := aggregated.Column(aggregator.ColFXChange).Last(); !math.IsNaN(v) {
			snapshot.MacroFX = models.Float64Ptr(v)
		}
	}
	vol := systemic.PctChange().RollingStd(macroVolWindow, macroVolWindow).LastValid()
	if !math.IsNaN(vol) {
		snapshot.MarketVolatility = models.Float64Ptr(vol)
	}
}

// forecastNextRisk is a one-step AR(1) projection: the lag-1
// autocorrelation of the systemic score times its latest value
func forecastNextRisk(systemic series.Series) *float64 {
	clean := systemic.DropNA()
	if clean.Len() < minForecastPoints {
		return nil
	}
	phi := clean.Lag1Autocorr()
	if math.IsNaN(phi) {
		phi = 0
	}
	return models.Float64Ptr(phi * clean.Last())
}

func correlationMatrix(columns map[string]series.Series) map[string]map[string]float64 {
	matrix := make(map[string]map[string]float64, len(columns))
	for a, sa := range columns {
		matrix[a] = make(map[string]float64, len(columns))
		for b, sb := range columns {
			c := series.Corr(sa.Values, sb.Values)
			if math.IsNaN(c) {
				c = 0
			}
			matrix[a][b] = c
		}
	}
	return matrix
}

func noZeros(s series.Series) bool {
	for _, v := range s.Values {
		if v == 0 {
			return false
		}
	}
	return len(s.Values) > 0
}

func meanRatio(num, den series.Series) float64 {
	ratios := make([]float64, 0, num.Len())
	for i := range num.Values {
		if math.IsNaN(num.Values[i]) || math.IsNaN(den.Values[i]) || den.Values[i] == 0 {
			continue
		}
		ratios = append(ratios, num.Values[i]/den.Values[i])
	}
	if len(ratios) == 0 {
		return 0
	}
	return series.Mean(ratios)
}
