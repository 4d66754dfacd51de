package tailrisk

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

// QuantileGrid is the fixed set of fitted quantiles
var QuantileGrid = []float64{0.01, 0.05, 0.10, 0.25, 0.50, 0.75, 0.90, 0.95, 0.99}

const interceptName = "const"

// Config names the frame columns the estimator works with. Interaction
// terms are added only when both of their factors are present.
type Config struct {
	Target       string
	CorrColumn   string
	VolColumn    string
	VIXColumn    string
	SpreadColumn string
}

// Estimator fits independent quantile regressions of the target column
// against the remaining columns plus engineered interaction terms.
type Estimator struct {
	cfg Config
	log *zap.Logger
}

func NewEstimator(cfg Config, log *zap.Logger) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{cfg: cfg, log: log}
}

// Estimate runs the full quantile grid and condenses VaR summaries.
// One quantile level failing is logged and skipped; the summary is built
// from whichever levels succeeded.
func (e *Estimator) Estimate(frame *series.Frame) (*models.QuantileSummary, error) {
	if !frame.HasColumn(e.cfg.Target) {
		return nil, fmt.Errorf("%w: target column %q missing", models.ErrAlignment, e.cfg.Target)
	}

	design, err := e.buildDesign(frame)
	if err != nil {
		return nil, err
	}

	var fits []models.QuantileFit
	fitByTau := make(map[float64]*quantileFit)
	for _, tau := range QuantileGrid {
		fit, err := fitQuantile(design.x, design.y, tau)
		if err != nil {
			e.log.Warn("quantile fit failed",
				zap.Float64("quantile", tau),
				zap.Error(err),
			)
			continue
		}
		fitByTau[tau] = fit
		fits = append(fits, models.QuantileFit{
			Quantile:     tau,
			Coefficients: namedValues(design.names, fit.beta),
			PValues:      finiteNamedValues(design.names, fit.pvalues),
			PseudoR2:     fit.pseudoR2,
			MeanFitted:   meanOf(fit.fitted),
		})
	}
	if len(fits) == 0 {
		return nil, fmt.Errorf("%w: no quantile level converged", models.ErrOptimizationFailure)
	}

	summary := &models.QuantileSummary{Fits: fits}
	if fit, ok := fitByTau[0.05]; ok {
		summary.VaR95 = meanOf(fit.fitted)
	}
	if fit, ok := fitByTau[0.50]; ok {
		summary.VaRNormal = meanOf(fit.fitted)
	}
	// Negative buffers are reported as-is. The 5th-quantile fit sitting
	// above the median fit is a signal worth seeing, not one to clamp.
	summary.CapitalBuffer = summary.VaR95 - summary.VaRNormal

	summary.CorrelationRisk = e.correlationRisk(design, fitByTau[0.05])

	return summary, nil
}

// correlationRisk summarizes the tail sensitivity to the correlation
// predictor: its moments, its 5th-quantile coefficient, and |beta*sigma|
func (e *Estimator) correlationRisk(d *designMatrix, tail *quantileFit) *models.CorrelationRisk {
	idx := indexOf(d.names, e.cfg.CorrColumn)
	if idx < 0 || tail == nil {
		return nil
	}

	col := make([]float64, len(d.y))
	for i := range col {
		col[i] = d.x.At(i, idx)
	}
	corrSeries := series.New(e.cfg.CorrColumn, nil, col)
	mean := corrSeries.Mean()
	std := corrSeries.Std()

	beta := tail.beta[idx]
	return &models.CorrelationRisk{
		Predictor:        e.cfg.CorrColumn,
		MeanCorr:         mean,
		VolCorr:          std,
		Beta:             beta,
		LossContribution: math.Abs(beta * std),
	}
}

type designMatrix struct {
	names []string
	x     *mat.Dense
	y     []float64
}

// buildDesign assembles the predictor matrix from the complete rows of the
// frame: every non-target column, the interaction terms, and an intercept
func (e *Estimator) buildDesign(frame *series.Frame) (*designMatrix, error) {
	clean := frame.DropNARows()

	predictors := make([]string, 0, len(clean.Columns()))
	for _, name := range clean.Columns() {
		if name != e.cfg.Target {
			predictors = append(predictors, name)
		}
	}
	sort.Strings(predictors)

	type interaction struct {
		name string
		a, b string
	}
	interactions := []interaction{
		{"Corr_VIX_Interaction", e.cfg.CorrColumn, e.cfg.VIXColumn},
		{"Corr_Spread_Interaction", e.cfg.CorrColumn, e.cfg.SpreadColumn},
		{"Vol_Corr_Interaction", e.cfg.VolColumn, e.cfg.CorrColumn},
	}

	names := append([]string(nil), predictors...)
	for _, it := range interactions {
		if clean.HasColumn(it.a) && clean.HasColumn(it.b) {
			names = append(names, it.name)
		}
	}
	names = append(names, interceptName)

	rows := clean.Len()
	cols := len(names)
	if rows <= cols {
		return nil, fmt.Errorf("%w: %d complete rows for %d predictors", models.ErrDataInsufficiency, rows, cols)
	}

	x := mat.NewDense(rows, cols, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		y[i] = clean.At(i, e.cfg.Target)
		col := 0
		for _, name := range predictors {
			x.Set(i, col, clean.At(i, name))
			col++
		}
		for _, it := range interactions {
			if clean.HasColumn(it.a) && clean.HasColumn(it.b) {
				x.Set(i, col, clean.At(i, it.a)*clean.At(i, it.b))
				col++
			}
		}
		x.Set(i, col, 1)
	}

	return &designMatrix{names: names, x: x, y: y}, nil
}

// EnhanceComponents appends PCA/Credit distribution context to a summary:
// percentile ladders, the current value's percentile rank, and extreme
// flags above the 95th percentile.
func EnhanceComponents(summary *models.QuantileSummary, pca, credit series.Series) {
	if summary == nil {
		return
	}

	ladder := []float64{0.05, 0.25, 0.50, 0.75, 0.95}
	component := func(s series.Series) (map[string]float64, *float64, bool) {
		clean := s.DropNA()
		if clean.Len() == 0 {
			return nil, nil, false
		}
		quantiles := make(map[string]float64, len(ladder))
		for _, q := range ladder {
			quantiles[fmt.Sprintf("q_%d", int(q*100))] = clean.Quantile(q)
		}
		current := s.LastValid()
		if math.IsNaN(current) {
			return quantiles, nil, false
		}
		below := 0
		for _, v := range clean.Values {
			if v < current {
				below++
			}
		}
		rank := float64(below) / float64(clean.Len())
		extreme := current > clean.Quantile(0.95)
		return quantiles, models.Float64Ptr(rank), extreme
	}

	pcaQ, pcaRank, pcaExtreme := component(pca)
	creditQ, creditRank, creditExtreme := component(credit)
	if pcaQ != nil || creditQ != nil {
		summary.ComponentQuantiles = &models.ComponentQuantiles{PCA: pcaQ, Credit: creditQ}
	}
	summary.PCAPercentile = pcaRank
	summary.CreditPercentile = creditRank
	summary.PCAExtreme = pcaExtreme
	summary.CreditExtreme = creditExtreme
}

func namedValues(names []string, values []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = values[i]
	}
	return out
}

// finiteNamedValues drops non-finite entries so the summary stays
// JSON-encodable when a standard error is unavailable
func finiteNamedValues(names []string, values []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for i, name := range names {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		out[name] = values[i]
	}
	return out
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func indexOf(names []string, target string) int {
	for i, name := range names {
		if name == target {
			return i
		}
	}
	return -1
}
