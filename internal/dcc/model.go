package dcc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

// State is the fit lifecycle of the model
type State int

const (
	StateUnfit State = iota
	StateFitting
	StateFitted
)

func (s State) String() string {
	switch s {
	case StateFitting:
		return "fitting"
	case StateFitted:
		return "fitted"
	default:
		return "unfit"
	}
}

// Parameters are the per-regime DCC(1,1) coefficients. Each pair must
// satisfy 0 < a < 1, 0 < b < 1, a+b < 1.
type Parameters struct {
	ANormal float64 `json:"a_normal"`
	BNormal float64 `json:"b_normal"`
	AStress float64 `json:"a_stress"`
	BStress float64 `json:"b_stress"`
}

// Valid reports whether both regimes sit inside the stationarity region
func (p Parameters) Valid() bool {
	return inRegion(p.ANormal, p.BNormal) && inRegion(p.AStress, p.BStress)
}

func inRegion(a, b float64) bool {
	return a > 0 && a < 1 && b > 0 && b < 1 && a+b < 1
}

var (
	// initialGuess seeds the likelihood search
	initialGuess = Parameters{ANormal: 0.02, BNormal: 0.96, AStress: 0.08, BStress: 0.88}
	// fallbackParameters substitute for a failed optimization so the
	// model never stays unfit after a fit attempt with enough data
	fallbackParameters = Parameters{ANormal: 0.02, BNormal: 0.97, AStress: 0.05, BStress: 0.93}
)

// MinResidualRows is the default minimum joint residual history the
// stage-2 fit accepts
const MinResidualRows = 100

// Model is a regime-switching dynamic-conditional-correlation model.
// It is a long-lived component: Fit is called once per engine lifetime and
// queries reuse the fitted parameters until an explicit Refit. All access
// to fitted state is synchronized.
type Model struct {
	minRows          int
	stressWindow     int
	stressMultiplier float64
	log              *zap.Logger

	mu           sync.RWMutex
	state        State
	params       Parameters
	usedFallback bool
	tickers      []string
	resid        [][]float64 // resid[t][i], joint non-missing rows only
	residDates   []int64
	stress       []bool
	qbar         *mat.SymDense
}

// NewModel creates an unfit model. minRows is the joint residual history
// the fit requires (MinResidualRows when non-positive);
// stressWindow/stressMultiplier control the derived regime indicator used
// when none is supplied.
func NewModel(minRows, stressWindow int, stressMultiplier float64, log *zap.Logger) *Model {
	if minRows <= 0 {
		minRows = MinResidualRows
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Model{
		minRows:          minRows,
		stressWindow:     stressWindow,
		stressMultiplier: stressMultiplier,
		log:              log,
	}
}

// State returns the current lifecycle state
func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Parameters returns the fitted parameters and whether they are the
// documented fallback constants
func (m *Model) Parameters() (Parameters, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params, m.usedFallback
}

// Tickers returns the asset names covered by the fitted model
func (m *Model) Tickers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.tickers...)
}

// StressAt reports the regime of residual row t
func (m *Model) StressAt(t int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t < 0 || t >= len(m.stress) {
		return false
	}
	return m.stress[t]
}

// Fit estimates the model from a return panel. regime optionally supplies
// an external stress indicator (>0.5 means stress); when empty, the
// indicator is derived from the rolling-volatility threshold. An external
// indicator always takes precedence over the derived one.
func (m *Model) Fit(ctx context.Context, panel *series.Frame, regime series.Series) error {
	m.mu.Lock()
	if m.state == StateFitting {
		m.mu.Unlock()
		return fmt.Errorf("fit already in progress")
	}
	m.state = StateFitting
	m.mu.Unlock()

	fitted, err := m.fit(ctx, panel, regime)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateUnfit
		return err
	}
	m.state = StateFitted
	m.params = fitted.params
	m.usedFallback = fitted.usedFallback
	m.tickers = fitted.tickers
	m.resid = fitted.resid
	m.residDates = fitted.residDates
	m.stress = fitted.stress
	m.qbar = fitted.qbar
	return nil
}

// Refit discards the fitted state and estimates again
func (m *Model) Refit(ctx context.Context, panel *series.Frame, regime series.Series) error {
	return m.Fit(ctx, panel, regime)
}

type fitResult struct {
	params       Parameters
	usedFallback bool
	tickers      []string
	resid        [][]float64
	residDates   []int64
	stress       []bool
	qbar         *mat.SymDense
}

func (m *Model) fit(ctx context.Context, panel *series.Frame, regime series.Series) (*fitResult, error) {
	tickers := panel.Columns()
	n := len(tickers)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least two assets, got %d", models.ErrDataInsufficiency, n)
	}

	// Stage 1: univariate GARCH per asset, simple standardization on failure
	residCols := make([]series.Series, n)
	for i, ticker := range tickers {
		resid, garchOK := fitGARCH(panel.Column(ticker))
		if !garchOK {
			m.log.Warn("GARCH fit failed, using standardized returns",
				zap.String("ticker", ticker),
			)
		}
		residCols[i] = resid
	}

	// Joint rows: dates where every asset has a residual
	residFrame := series.NewFrame(panel.Dates())
	for i, ticker := range tickers {
		residFrame.SetSeries(ticker, residCols[i])
	}
	residFrame = residFrame.DropNARows()

	rows := residFrame.Len()
	if rows < m.minRows {
		return nil, fmt.Errorf("%w: %d residual rows, need %d", models.ErrDataInsufficiency, rows, m.minRows)
	}

	resid := make([][]float64, rows)
	for t := 0; t < rows; t++ {
		resid[t] = make([]float64, n)
		for i, ticker := range tickers {
			resid[t][i] = residFrame.At(t, ticker)
		}
	}
	residDates := make([]int64, rows)
	for t, d := range residFrame.Dates() {
		residDates[t] = d.Unix()
	}

	// Stage 2: regime partition, external indicator wins
	stress := m.resolveRegime(panel, residFrame, regime)

	qbar := covarianceOf(resid)

	// Maximize the regime-conditional likelihood inside the stationarity region
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			select {
			case <-ctx.Done():
				return math.Inf(1)
			default:
			}
			return dccNegLogLik(Parameters{ANormal: x[0], BNormal: x[1], AStress: x[2], BStress: x[3]}, resid, stress, qbar)
		},
	}
	initial := []float64{initialGuess.ANormal, initialGuess.BNormal, initialGuess.AStress, initialGuess.BStress}
	settings := &optimize.Settings{MajorIterations: 400}

	params := fallbackParameters
	usedFallback := true
	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || result == nil || math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		m.log.Warn("DCC optimization failed, using fallback parameters",
			zap.Error(err),
		)
	} else {
		candidate := Parameters{ANormal: result.X[0], BNormal: result.X[1], AStress: result.X[2], BStress: result.X[3]}
		if candidate.Valid() {
			params = candidate
			usedFallback = false
		} else {
			m.log.Warn("DCC optimizer left the stationarity region, using fallback parameters")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("DCC fit cancelled: %w", err)
	}

	m.log.Info("DCC model fitted",
		zap.Float64("a_normal", params.ANormal),
		zap.Float64("b_normal", params.BNormal),
		zap.Float64("a_stress", params.AStress),
		zap.Float64("b_stress", params.BStress),
		zap.Bool("fallback", usedFallback),
		zap.Int("rows", rows),
	)

	return &fitResult{
		params:       params,
		usedFallback: usedFallback,
		tickers:      tickers,
		resid:        resid,
		residDates:   residDates,
		stress:       stress,
		qbar:         qbar,
	}, nil
}

// resolveRegime aligns the external indicator to the residual rows, or
// derives one from the rolling-volatility threshold when none is supplied
func (m *Model) resolveRegime(panel *series.Frame, residFrame *series.Frame, regime series.Series) []bool {
	rows := residFrame.Len()
	stress := make([]bool, rows)

	if regime.ValidCount() > 0 {
		aligned := regime.Reindex(residFrame.Dates()).ForwardFill().FillZero()
		for t := 0; t < rows; t++ {
			stress[t] = aligned.Values[t] > 0.5
		}
		return stress
	}

	// Cross-sectional mean of per-asset rolling vol, stressed above
	// stressMultiplier times its own mean
	tickers := panel.Columns()
	meanVol := make([]float64, panel.Len())
	for t := range meanVol {
		meanVol[t] = math.NaN()
	}
	rolling := make([]series.Series, len(tickers))
	for i, ticker := range tickers {
		rolling[i] = panel.Column(ticker).RollingStd(m.stressWindow, m.stressWindow)
	}
	for t := 0; t < panel.Len(); t++ {
		var sum float64
		count := 0
		for i := range tickers {
			if v := rolling[i].Values[t]; !math.IsNaN(v) {
				sum += v
				count++
			}
		}
		if count == len(tickers) {
			meanVol[t] = sum / float64(count)
		}
	}
	volSeries := series.New("mean_vol", panel.Dates(), meanVol)
	threshold := volSeries.Mean() * m.stressMultiplier

	aligned := volSeries.Reindex(residFrame.Dates())
	for t := 0; t < rows; t++ {
		stress[t] = !math.IsNaN(aligned.Values[t]) && aligned.Values[t] > threshold
	}
	return stress
}

// ComputePairCorrelation re-runs the correlation recursion with the fitted
// parameters and returns the pair's dynamic correlation series. Repeat
// calls with the same fitted state are bit-identical.
func (m *Model) ComputePairCorrelation(assetA, assetB string) (series.Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateFitted {
		return series.Series{}, fmt.Errorf("model is %s, call Fit first", m.state)
	}

	i := indexOf(m.tickers, assetA)
	j := indexOf(m.tickers, assetB)
	if i < 0 || j < 0 {
		return series.Series{}, fmt.Errorf("unknown pair %s/%s", assetA, assetB)
	}

	n := len(m.tickers)
	rows := len(m.resid)
	rho := make([]float64, rows)

	q := make([][]float64, n)
	qNext := make([][]float64, n)
	for r := 0; r < n; r++ {
		q[r] = make([]float64, n)
		qNext[r] = make([]float64, n)
		for c := 0; c < n; c++ {
			q[r][c] = m.qbar.At(r, c)
		}
	}

	for t := 0; t < rows; t++ {
		if t > 0 {
			a, b := m.params.ANormal, m.params.BNormal
			if m.stress[t] {
				a, b = m.params.AStress, m.params.BStress
			}
			prev := m.resid[t-1]
			for r := 0; r < n; r++ {
				for c := 0; c < n; c++ {
					qNext[r][c] = (1-a-b)*m.qbar.At(r, c) + a*prev[r]*prev[c] + b*q[r][c]
				}
			}
			q, qNext = qNext, q
		}
		denom := math.Sqrt(q[i][i] * q[j][j])
		if denom == 0 {
			rho[t] = math.NaN()
		} else {
			rho[t] = q[i][j] / denom
		}
	}

	out := series.Series{
		Name:   fmt.Sprintf("%s_%s", assetA, assetB),
		Dates:  unixDates(m.residDates),
		Values: rho,
	}
	return out, nil
}

func unixDates(ts []int64) []time.Time {
	out := make([]time.Time, len(ts))
	for i, t := range ts {
		out[i] = time.Unix(t, 0).UTC()
	}
	return out
}

func indexOf(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}
