package volatility

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/selivandex/riskpulse/pkg/models"
	"github.com/selivandex/riskpulse/pkg/series"
)

const (
	realizedWindow = 21
	realizedMinObs = 15
	weeklyWindow   = 5
	weeklyMinObs   = 3
	minExcessObs   = 10
)

// HARResult holds the heterogeneous-autoregressive volatility gap
type HARResult struct {
	Realized series.Series
	Forecast series.Series
	Excess   series.Series
	// ZScore is the excess volatility standardized over its own
	// non-missing history
	ZScore series.Series
}

// Regression is the OLS variant: RV_t regressed on its daily, weekly and
// monthly lags
type Regression struct {
	Coefficients map[string]float64
	Fitted       series.Series
	Residuals    series.Series
	R2           float64
}

// Forecaster blends short, medium and long-horizon historical volatility
// into a realized-vs-forecast gap signal
type Forecaster struct {
	log *zap.Logger
}

// NewForecaster creates a HAR volatility forecaster
func NewForecaster(log *zap.Logger) *Forecaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Forecaster{log: log}
}

// ExcessVolatility computes realized volatility, the HAR forecast and the
// standardized gap between them for one return series
func (f *Forecaster) ExcessVolatility(returns series.Series) (*HARResult, error) {
	clean := returns.DropNA()
	if clean.Len() < realizedWindow {
		return nil, fmt.Errorf("%w: %d observations, need %d", models.ErrDataInsufficiency, clean.Len(), realizedWindow)
	}

	realized := clean.RollingStd(realizedWindow, realizedMinObs)
	daily := clean.RollingStd(1, 1)
	weekly := clean.RollingStd(weeklyWindow, weeklyMinObs)
	monthly := clean.RollingStd(realizedWindow, realizedMinObs)

	forecast := make([]float64, clean.Len())
	excess := make([]float64, clean.Len())
	for i := range forecast {
		d, w, m := daily.Values[i], weekly.Values[i], monthly.Values[i]
		if math.IsNaN(d) || math.IsNaN(w) || math.IsNaN(m) || math.IsNaN(realized.Values[i]) {
			forecast[i] = math.NaN()
			excess[i] = math.NaN()
			continue
		}
		forecast[i] = (d + w + m) / 3
		excess[i] = realized.Values[i] - forecast[i]
	}

	excessSeries := series.New("HAR_ExcessVol", clean.Dates, excess)
	if excessSeries.ValidCount() < minExcessObs {
		return nil, fmt.Errorf("%w: %d excess-volatility observations, need %d",
			models.ErrDataInsufficiency, excessSeries.ValidCount(), minExcessObs)
	}

	z := excessSeries.ZScore()
	z.Name = "HAR_ExcessVol_Z"

	f.log.Debug("HAR excess volatility computed",
		zap.Int("observations", excessSeries.ValidCount()),
	)

	return &HARResult{
		Realized: realized,
		Forecast: series.New("HAR_Forecast", clean.Dates, forecast),
		Excess:   excessSeries,
		ZScore:   z,
	}, nil
}

// FitRegression fits RV_t = c + b_d RV_{t-1} + b_w mean5(RV) + b_m mean22(RV)
// by ordinary least squares, where RV is the one-period realized variance
func (f *Forecaster) FitRegression(returns series.Series) (*Regression, error) {
	clean := returns.DropNA()
	if clean.Len() < 30 {
		return nil, fmt.Errorf("%w: %d observations for HAR regression", models.ErrDataInsufficiency, clean.Len())
	}

	rv := make([]float64, clean.Len())
	for i, r := range clean.Values {
		rv[i] = r * r
	}
	rvSeries := series.New("RV", clean.Dates, rv)
	weekly := rvSeries.RollingMean(5, 5)
	monthly := rvSeries.RollingMean(22, 22)

	// Predictors lag the response by one period
	var rows []int
	for t := 1; t < clean.Len(); t++ {
		if !math.IsNaN(weekly.Values[t-1]) && !math.IsNaN(monthly.Values[t-1]) {
			rows = append(rows, t)
		}
	}
	if len(rows) < 10 {
		return nil, fmt.Errorf("%w: %d usable rows for HAR regression", models.ErrDataInsufficiency, len(rows))
	}

	n := len(rows)
	x := mat.NewDense(n, 4, nil)
	y := mat.NewVecDense(n, nil)
	for i, t := range rows {
		x.Set(i, 0, 1)
		x.Set(i, 1, rv[t-1])
		x.Set(i, 2, weekly.Values[t-1])
		x.Set(i, 3, monthly.Values[t-1])
		y.SetVec(i, rv[t])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("%w: HAR regression: %v", models.ErrOptimizationFailure, err)
	}

	fitted := make([]float64, n)
	residuals := make([]float64, n)
	var ssr, sst float64
	yMean := series.Mean(vecValues(y))
	for i := 0; i < n; i++ {
		var pred float64
		for j := 0; j < 4; j++ {
			pred += x.At(i, j) * beta.AtVec(j)
		}
		fitted[i] = pred
		residuals[i] = y.AtVec(i) - pred
		ssr += residuals[i] * residuals[i]
		sst += (y.AtVec(i) - yMean) * (y.AtVec(i) - yMean)
	}

	r2 := 0.0
	if sst > 0 {
		r2 = 1 - ssr/sst
	}

	fitDates := make([]time.Time, n)
	for i, t := range rows {
		fitDates[i] = clean.Dates[t]
	}
	fittedSeries := series.New("RV_fitted", fitDates, fitted)
	residSeries := series.New("RV_resid", fitDates, residuals)

	return &Regression{
		Coefficients: map[string]float64{
			"const": beta.AtVec(0),
			"RV_d":  beta.AtVec(1),
			"RV_w":  beta.AtVec(2),
			"RV_m":  beta.AtVec(3),
		},
		Fitted:    fittedSeries,
		Residuals: residSeries,
		R2:        r2,
	}, nil
}

func vecValues(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
