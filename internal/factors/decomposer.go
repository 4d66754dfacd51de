package factors

import (
	"fmt"
	"math"
	"time"

	"github.com/cinar/indicator"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/selivandex/riskpulse/pkg/series"
)

// Snapshot holds one rolling-window factor decomposition
type Snapshot struct {
	Date              time.Time
	Eigenvalues       []float64
	ExplainedVariance []float64
	// Loadings[i][k] is the weight of asset i on component k
	Loadings [][]float64
	// Scores[k] is the projection of the current-day return vector on component k
	Scores []float64
}

// Result is the output of one full rolling decomposition
type Result struct {
	Tickers   []string
	Window    int
	Snapshots []Snapshot
	// Signal is the standardized, smoothed first-component score
	Signal series.Series
	// RawScores is the unsmoothed first-component score
	RawScores series.Series
}

// LatestExplainedVariance maps component names to the most recent
// explained-variance ratios
func (r *Result) LatestExplainedVariance() map[string]float64 {
	if len(r.Snapshots) == 0 {
		return map[string]float64{}
	}
	last := r.Snapshots[len(r.Snapshots)-1]
	out := make(map[string]float64, len(last.ExplainedVariance))
	for k, v := range last.ExplainedVariance {
		out[fmt.Sprintf("EVR%d", k+1)] = v
	}
	return out
}

// Decomposer performs a rolling principal-component decomposition of a
// return panel. The sign of the first eigenvector is pinned to the
// reference asset so the signal does not flip between runs.
type Decomposer struct {
	window     int
	components int
	smoothing  int
	reference  string
	log        *zap.Logger
}

// NewDecomposer creates a decomposer. components <= 0 means all components.
func NewDecomposer(window, components, smoothing int, reference string, log *zap.Logger) *Decomposer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decomposer{
		window:     window,
		components: components,
		smoothing:  smoothing,
		reference:  reference,
		log:        log,
	}
}

// Decompose runs the rolling decomposition over the panel. A panel
// shorter than the window yields an empty result, not an error.
func (d *Decomposer) Decompose(panel *series.Frame) (*Result, error) {
	tickers := panel.Columns()
	n := len(tickers)

	result := &Result{Tickers: tickers, Window: d.window}
	if n == 0 || panel.Len() < d.window {
		return result, nil
	}

	components := d.components
	if components <= 0 || components > n {
		components = n
	}

	refIdx := -1
	for i, t := range tickers {
		if t == d.reference {
			refIdx = i
			break
		}
	}

	dates := panel.Dates()
	var signalDates []time.Time
	var rawScores []float64

	for t := d.window - 1; t < panel.Len(); t++ {
		windowData, ok := d.windowMatrix(panel, tickers, t)
		if !ok {
			// A gap inside the window disqualifies this date
			continue
		}

		corr := mat.NewSymDense(n, nil)
		stat.CorrelationMatrix(corr, windowData, nil)
		if !finiteSym(corr) {
			d.log.Warn("degenerate correlation window skipped",
				zap.Time("date", dates[t]),
			)
			continue
		}

		var eig mat.EigenSym
		if !eig.Factorize(corr, true) {
			d.log.Warn("eigendecomposition failed",
				zap.Time("date", dates[t]),
			)
			continue
		}

		values := eig.Values(nil)
		var vecs mat.Dense
		eig.VectorsTo(&vecs)

		// EigenSym returns ascending eigenvalues; reverse to descending
		order := make([]int, n)
		for k := range order {
			order[k] = n - 1 - k
		}

		eigenvalues := make([]float64, n)
		loadings := make([][]float64, n)
		for i := range loadings {
			loadings[i] = make([]float64, n)
		}
		for k, src := range order {
			eigenvalues[k] = values[src]
			for i := 0; i < n; i++ {
				loadings[i][k] = vecs.At(i, src)
			}
		}

		// Pin the first component's sign to the reference asset
		if refIdx >= 0 && loadings[refIdx][0] < 0 {
			for i := 0; i < n; i++ {
				loadings[i][0] = -loadings[i][0]
			}
		}

		var total float64
		for _, v := range eigenvalues {
			total += v
		}
		evr := make([]float64, components)
		for k := 0; k < components; k++ {
			evr[k] = eigenvalues[k] / total
		}

		scores := make([]float64, components)
		for k := 0; k < components; k++ {
			var dot float64
			for i := 0; i < n; i++ {
				dot += loadings[i][k] * panel.At(t, tickers[i])
			}
			scores[k] = dot
		}

		result.Snapshots = append(result.Snapshots, Snapshot{
			Date:              dates[t],
			Eigenvalues:       eigenvalues[:components],
			ExplainedVariance: evr,
			Loadings:          loadings,
			Scores:            scores,
		})
		signalDates = append(signalDates, dates[t])
		rawScores = append(rawScores, scores[0])
	}

	if len(rawScores) == 0 {
		return result, nil
	}

	result.RawScores = series.New("PC1_score", signalDates, rawScores)

	standardized := result.RawScores.ZScore()
	smoothed := indicator.Sma(d.smoothing, standardized.Values)
	result.Signal = series.New("PCA", signalDates, smoothed)

	d.log.Debug("rolling decomposition complete",
		zap.Int("windows", len(result.Snapshots)),
		zap.Int("components", components),
	)

	return result, nil
}

// windowMatrix extracts the trailing window ending at row t, rejecting
// windows containing missing values
func (d *Decomposer) windowMatrix(panel *series.Frame, tickers []string, t int) (*mat.Dense, bool) {
	n := len(tickers)
	data := make([]float64, d.window*n)
	for r := 0; r < d.window; r++ {
		row := t - d.window + 1 + r
		for c, ticker := range tickers {
			v := panel.At(row, ticker)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, false
			}
			data[r*n+c] = v
		}
	}
	return mat.NewDense(d.window, n, data), true
}

func finiteSym(m *mat.SymDense) bool {
	n := m.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.IsNaN(m.At(i, j)) || math.IsInf(m.At(i, j), 0) {
				return false
			}
		}
	}
	return true
}
