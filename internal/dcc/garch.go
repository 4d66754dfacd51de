package dcc

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/selivandex/riskpulse/pkg/series"
)

// garchParams are the GARCH(1,1) parameters sigma2_t = omega + alpha*r2_{t-1} + beta*sigma2_{t-1}
type garchParams struct {
	omega float64
	alpha float64
	beta  float64
}

func (p garchParams) valid() bool {
	return p.omega > 0 && p.alpha >= 0 && p.beta >= 0 && p.alpha+p.beta < 1
}

// garchNegLogLik is the Gaussian negative log-likelihood of demeaned
// returns under GARCH(1,1). Out-of-region candidates are unbounded.
func garchNegLogLik(x []float64, returns []float64, variance float64) float64 {
	p := garchParams{omega: x[0], alpha: x[1], beta: x[2]}
	if !p.valid() {
		return math.Inf(1)
	}

	sigma2 := variance
	ll := 0.0
	for t := 1; t < len(returns); t++ {
		sigma2 = p.omega + p.alpha*returns[t-1]*returns[t-1] + p.beta*sigma2
		if sigma2 <= 0 || math.IsNaN(sigma2) {
			return math.Inf(1)
		}
		ll += 0.5 * (math.Log(sigma2) + returns[t]*returns[t]/sigma2)
	}
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return math.Inf(1)
	}
	return ll
}

// fitGARCH fits GARCH(1,1) to one return series and returns standardized
// residuals. Any optimizer failure falls back to plain standardization
// (subtract mean, divide by std) for that asset only.
func fitGARCH(returns series.Series) (series.Series, bool) {
	clean := returns.DropNA()
	mean := clean.Mean()
	demeaned := make([]float64, clean.Len())
	for i, v := range clean.Values {
		demeaned[i] = v - mean
	}
	variance := series.Std(demeaned)
	variance *= variance

	if clean.Len() < 20 || variance == 0 || math.IsNaN(variance) {
		return simpleStandardize(clean), false
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return garchNegLogLik(x, demeaned, variance)
		},
	}
	initial := []float64{0.05 * variance, 0.05, 0.9}
	settings := &optimize.Settings{MajorIterations: 500}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil || result == nil || math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return simpleStandardize(clean), false
	}

	fitted := garchParams{omega: result.X[0], alpha: result.X[1], beta: result.X[2]}
	if !fitted.valid() {
		return simpleStandardize(clean), false
	}

	resid := make([]float64, clean.Len())
	sigma2 := variance
	for t := 0; t < clean.Len(); t++ {
		if t > 0 {
			sigma2 = fitted.omega + fitted.alpha*demeaned[t-1]*demeaned[t-1] + fitted.beta*sigma2
		}
		if sigma2 <= 0 {
			return simpleStandardize(clean), false
		}
		resid[t] = demeaned[t] / math.Sqrt(sigma2)
	}

	return series.New(clean.Name, clean.Dates, resid), true
}

// simpleStandardize is the stage-1 fallback: subtract mean, divide by std
func simpleStandardize(clean series.Series) series.Series {
	return clean.ZScore()
}
