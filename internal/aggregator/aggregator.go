package aggregator

import (
	"math"

	"go.uber.org/zap"

	"github.com/selivandex/riskpulse/internal/volatility"
	"github.com/selivandex/riskpulse/pkg/series"
)

// Canonical signal column names of the aggregated table
const (
	ColSystemic           = "Systemic"
	ColPCA                = "PCA"
	ColCredit             = "Credit"
	ColQuantileSignal     = "Quantile_Signal"
	ColDCCCorr            = "DCC_Corr"
	ColCorrExceedsBoot    = "Corr_Exceeds_Bootstrap"
	ColHARExcessVolZ      = "HAR_ExcessVol_Z"
	ColCreditSpreadChange = "Credit_Spread_Change"
	ColIGSpreadChange     = "IG_Spread_Change"
	ColVIXChange          = "VIX_Change"
	ColOilReturn          = "oil_return"
	ColFXChange           = "fx_change"
	ColIsWarning          = "is_warning"
	ColCompositeScore     = "Composite_Risk_Score"
)

const (
	quantileWindow     = 63
	quantileMinPeriods = 50
	corrWindow         = 21
	corrMinPeriods     = 15
	harWarningZ        = 2.0
	warningQuantile    = 0.95
	bootstrapQuantile  = 0.95
)

// compositeWeights are renormalized over whichever components are present
var compositeWeights = map[string]float64{
	"systemic":      0.4,
	"quantile":      0.2,
	"dcc":           0.2,
	"har":           0.2,
	"credit_spread": 0.1,
	"vix":           0.1,
}

// Config names the panel columns the aggregator draws signals from
type Config struct {
	CreditETF   string // tail-quantile signal source
	CorrBase    string // rolling-correlation pair
	CorrQuote   string
	MarketProxy string // HAR excess-volatility source
}

// Aggregator merges per-date risk signals into one table. Every signal is
// best-effort: a source column missing or too short is logged and skipped,
// never fatal.
type Aggregator struct {
	cfg        Config
	forecaster *volatility.Forecaster
	log        *zap.Logger
}

func New(cfg Config, forecaster *volatility.Forecaster, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{cfg: cfg, forecaster: forecaster, log: log}
}

// Aggregate enriches the base Systemic/PCA/Credit table with the
// remaining signals from the market panel, then computes the composite
// warning flag and composite risk score. Residual gaps are resolved by
// forward-fill, back-fill, then zero-fill.
func (a *Aggregator) Aggregate(base *series.Frame, market *series.Frame) *series.Frame {
	out := base.Clone()

	a.addQuantileSignal(out, market)
	a.addRollingCorrelation(out, market)
	a.addExcessVolatility(out, market)
	a.copyFilled(out, market, ColCreditSpreadChange)
	a.copyFilled(out, market, ColIGSpreadChange)
	a.copyFilled(out, market, ColVIXChange)
	a.copyFilled(out, market, ColOilReturn)
	a.copyFilled(out, market, ColFXChange)

	a.addWarningFlag(out)
	a.addCompositeScore(out)

	out.FillGaps()

	a.log.Info("aggregated risk signals",
		zap.Int("rows", out.Len()),
		zap.Int("columns", len(out.Columns())),
	)
	return out
}

// addQuantileSignal tracks the rolling 5th percentile of the credit ETF's
// returns, a direct read on the left tail of credit flows
func (a *Aggregator) addQuantileSignal(out, market *series.Frame) {
	if !market.HasColumn(a.cfg.CreditETF) {
		return
	}
	returns := market.Column(a.cfg.CreditETF)
	if returns.ValidCount() < quantileWindow {
		a.log.Warn("insufficient history for quantile signal",
			zap.String("ticker", a.cfg.CreditETF),
			zap.Int("valid", returns.ValidCount()),
		)
		return
	}
	sig := returns.RollingQuantile(quantileWindow, quantileMinPeriods, 0.05).ForwardFill()
	out.SetSeries(ColQuantileSignal, sig.Reindex(out.Dates()))
}

// addRollingCorrelation adds the pairwise rolling correlation of the
// configured sector pair plus its bootstrap exceedance indicator
func (a *Aggregator) addRollingCorrelation(out, market *series.Frame) {
	if !market.HasColumn(a.cfg.CorrBase) || !market.HasColumn(a.cfg.CorrQuote) {
		return
	}
	base := market.Column(a.cfg.CorrBase).DropNA()
	quote := market.Column(a.cfg.CorrQuote).DropNA()
	alignedBase, alignedQuote := series.AlignIntersection(base, quote)
	if alignedBase.Len() < corrWindow {
		a.log.Warn("insufficient overlap for rolling correlation",
			zap.String("base", a.cfg.CorrBase),
			zap.String("quote", a.cfg.CorrQuote),
			zap.Int("overlap", alignedBase.Len()),
		)
		return
	}

	rolling := alignedBase.RollingCorr(alignedQuote, corrWindow, corrMinPeriods)
	full := rolling.Reindex(market.Dates()).ForwardFill()
	out.SetSeries(ColDCCCorr, full.Reindex(out.Dates()))

	clean := rolling.DropNA()
	if clean.Len() == 0 {
		return
	}
	threshold := clean.Quantile(bootstrapQuantile)
	exceeds := make([]float64, full.Len())
	for i, v := range full.Values {
		if !math.IsNaN(v) && v > threshold {
			exceeds[i] = 1
		}
	}
	flag := series.New(ColCorrExceedsBoot, full.Dates, exceeds)
	out.SetSeries(ColCorrExceedsBoot, flag.Reindex(out.Dates()))
}

// addExcessVolatility runs the HAR forecaster on the market proxy and
// carries its z-score forward
func (a *Aggregator) addExcessVolatility(out, market *series.Frame) {
	if !market.HasColumn(a.cfg.MarketProxy) {
		return
	}
	result, err := a.forecaster.ExcessVolatility(market.Column(a.cfg.MarketProxy))
	if err != nil {
		a.log.Warn("excess volatility unavailable",
			zap.String("ticker", a.cfg.MarketProxy),
			zap.Error(err),
		)
		return
	}
	z := result.ZScore.Reindex(market.Dates()).ForwardFill()
	out.SetSeries(ColHARExcessVolZ, z.Reindex(out.Dates()))
}

func (a *Aggregator) copyFilled(out, market *series.Frame, name string) {
	if !market.HasColumn(name) {
		return
	}
	out.SetSeries(name, market.Column(name).ForwardFill().Reindex(out.Dates()))
}

// addWarningFlag ORs the individual alarms: systemic score above its own
// 95th percentile, rolling correlation above its own 95th percentile, or
// HAR z-score above 2
func (a *Aggregator) addWarningFlag(out *series.Frame) {
	warnings := make([]float64, out.Len())

	mark := func(s series.Series, threshold float64) {
		for i, v := range s.Values {
			if !math.IsNaN(v) && v > threshold {
				warnings[i] = 1
			}
		}
	}

	if out.HasColumn(ColSystemic) {
		systemic := out.Column(ColSystemic)
		mark(systemic, systemic.Quantile(warningQuantile))
	}
	if out.HasColumn(ColDCCCorr) {
		dcc := out.Column(ColDCCCorr)
		mark(dcc, dcc.Quantile(warningQuantile))
	}
	if out.HasColumn(ColHARExcessVolZ) {
		mark(out.Column(ColHARExcessVolZ), harWarningZ)
	}

	out.SetColumn(ColIsWarning, warnings)
}

// addCompositeScore computes the weighted sum of standardized components.
// The HAR column is already a z-score and enters raw; weights renormalize
// to sum one over the components actually present.
func (a *Aggregator) addCompositeScore(out *series.Frame) {
	type component struct {
		weight float64
		values series.Series
	}
	var components []component

	add := func(name string, weight float64, standardize bool) {
		if !out.HasColumn(name) {
			return
		}
		col := out.Column(name)
		if standardize {
			col = col.ZScore()
		}
		components = append(components, component{weight: weight, values: col})
	}

	add(ColSystemic, compositeWeights["systemic"], true)
	add(ColQuantileSignal, compositeWeights["quantile"], true)
	add(ColDCCCorr, compositeWeights["dcc"], true)
	add(ColHARExcessVolZ, compositeWeights["har"], false)
	add(ColCreditSpreadChange, compositeWeights["credit_spread"], true)
	add(ColVIXChange, compositeWeights["vix"], true)

	if len(components) == 0 {
		return
	}

	var total float64
	for _, c := range components {
		total += c.weight
	}

	score := make([]float64, out.Len())
	for _, c := range components {
		w := c.weight / total
		for i, v := range c.values.Values {
			if math.IsNaN(v) {
				continue
			}
			score[i] += w * v
		}
	}
	out.SetColumn(ColCompositeScore, score)
}
