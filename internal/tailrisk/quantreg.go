package tailrisk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	irlsMaxIterations = 100
	irlsTolerance     = 1e-8
	// residualFloor keeps the IRLS weights bounded near zero residuals
	residualFloor = 1e-6
)

// quantileFit is a single fitted quantile regression
type quantileFit struct {
	tau      float64
	beta     []float64
	fitted   []float64
	pvalues  []float64
	pseudoR2 float64
}

// fitQuantile estimates the tau-th conditional quantile of y by iteratively
// reweighted least squares on the pinball loss. X is n x p with an
// intercept column already appended.
func fitQuantile(x *mat.Dense, y []float64, tau float64) (*quantileFit, error) {
	n, p := x.Dims()
	if n <= p {
		return nil, fmt.Errorf("quantile %.2f: %d rows for %d parameters", tau, n, p)
	}

	yVec := mat.NewVecDense(n, y)
	beta := mat.NewVecDense(p, nil)
	prev := mat.NewVecDense(p, nil)

	// Start from the least-squares solution
	var qr mat.QR
	qr.Factorize(x)
	if err := qr.SolveVecTo(beta, false, yVec); err != nil {
		return nil, fmt.Errorf("quantile %.2f: initial solve: %w", tau, err)
	}

	resid := make([]float64, n)
	weighted := mat.NewDense(n, p, nil)
	wy := mat.NewVecDense(n, nil)
	row := make([]float64, p)

	for iter := 0; iter < irlsMaxIterations; iter++ {
		prev.CopyVec(beta)

		for i := 0; i < n; i++ {
			var fit float64
			for j := 0; j < p; j++ {
				fit += x.At(i, j) * beta.AtVec(j)
			}
			resid[i] = y[i] - fit
		}

		// Pinball weights: |tau - 1{r<0}| / max(|r|, floor)
		for i := 0; i < n; i++ {
			check := tau
			if resid[i] < 0 {
				check = 1 - tau
			}
			w := math.Sqrt(check / math.Max(math.Abs(resid[i]), residualFloor))
			mat.Row(row, i, x)
			for j := 0; j < p; j++ {
				weighted.Set(i, j, row[j]*w)
			}
			wy.SetVec(i, y[i]*w)
		}

		var wqr mat.QR
		wqr.Factorize(weighted)
		if err := wqr.SolveVecTo(beta, false, wy); err != nil {
			return nil, fmt.Errorf("quantile %.2f: IRLS solve: %w", tau, err)
		}

		var delta float64
		for j := 0; j < p; j++ {
			delta = math.Max(delta, math.Abs(beta.AtVec(j)-prev.AtVec(j)))
		}
		if delta < irlsTolerance {
			break
		}
	}

	fitted := make([]float64, n)
	for i := 0; i < n; i++ {
		var fit float64
		for j := 0; j < p; j++ {
			fit += x.At(i, j) * beta.AtVec(j)
		}
		fitted[i] = fit
		resid[i] = y[i] - fit
	}

	out := &quantileFit{
		tau:      tau,
		beta:     make([]float64, p),
		fitted:   fitted,
		pseudoR2: pseudoRSquared(y, fitted),
	}
	for j := 0; j < p; j++ {
		out.beta[j] = beta.AtVec(j)
	}
	out.pvalues = asymptoticPValues(x, resid, out.beta, tau)
	return out, nil
}

// pseudoRSquared is 1 - SSR/SST over the fitted values
func pseudoRSquared(y, fitted []float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssr, sst float64
	for i, v := range y {
		ssr += (v - fitted[i]) * (v - fitted[i])
		sst += (v - mean) * (v - mean)
	}
	if sst == 0 {
		return 0
	}
	return 1 - ssr/sst
}

// asymptoticPValues uses the iid sandwich tau(1-tau)/f(0)^2 * (X'X)^-1
// with a Gaussian-kernel estimate of the residual density at zero
func asymptoticPValues(x *mat.Dense, resid, beta []float64, tau float64) []float64 {
	_, p := x.Dims()
	pvalues := make([]float64, p)
	for j := range pvalues {
		pvalues[j] = math.NaN()
	}

	f0 := kernelDensityAtZero(resid)
	if f0 <= 0 {
		return pvalues
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	var inv mat.SymDense
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return pvalues
	}
	if err := chol.InverseTo(&inv); err != nil {
		return pvalues
	}

	scale := tau * (1 - tau) / (f0 * f0)
	for j := 0; j < p; j++ {
		se := math.Sqrt(scale * inv.At(j, j))
		if se == 0 || math.IsNaN(se) {
			continue
		}
		z := math.Abs(beta[j] / se)
		pvalues[j] = math.Erfc(z / math.Sqrt2)
	}
	return pvalues
}

// kernelDensityAtZero estimates the residual density at zero with a
// Gaussian kernel and Silverman's bandwidth
func kernelDensityAtZero(resid []float64) float64 {
	n := len(resid)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, r := range resid {
		mean += r
	}
	mean /= float64(n)
	var variance float64
	for _, r := range resid {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(n - 1)
	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return 0
	}

	h := 1.06 * sigma * math.Pow(float64(n), -0.2)
	var density float64
	for _, r := range resid {
		u := r / h
		density += math.Exp(-0.5*u*u) / math.Sqrt(2*math.Pi)
	}
	return density / (float64(n) * h)
}
