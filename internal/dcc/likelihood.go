package dcc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// covarianceOf computes the unconditional covariance of the residual rows,
// used as the intercept matrix of the correlation recursion
func covarianceOf(resid [][]float64) *mat.SymDense {
	rows := len(resid)
	n := len(resid[0])

	means := make([]float64, n)
	for _, row := range resid {
		for i, v := range row {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= float64(rows)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var sum float64
			for _, row := range resid {
				sum += (row[i] - means[i]) * (row[j] - means[j])
			}
			cov.SetSym(i, j, sum/float64(rows-1))
		}
	}
	return cov
}

// dccNegLogLik evaluates the regime-conditional DCC likelihood
// 0.5 * sum_t (log det R_t + eps_t' R_t^-1 eps_t). Parameters outside the
// stationarity region, non-positive-definite correlation matrices and
// non-finite terms all yield +Inf so the simplex walks back inside.
func dccNegLogLik(p Parameters, resid [][]float64, stress []bool, qbar *mat.SymDense) float64 {
	if !p.Valid() {
		return math.Inf(1)
	}

	n := qbar.SymmetricDim()
	rows := len(resid)

	q := mat.NewSymDense(n, nil)
	q.CopySym(qbar)
	qNext := mat.NewSymDense(n, nil)
	r := mat.NewSymDense(n, nil)
	eps := mat.NewVecDense(n, nil)
	solved := mat.NewVecDense(n, nil)
	var chol mat.Cholesky

	var negLogLik float64
	for t := 0; t < rows; t++ {
		if t > 0 {
			a, b := p.ANormal, p.BNormal
			if stress[t] {
				a, b = p.AStress, p.BStress
			}
			prev := resid[t-1]
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					qNext.SetSym(i, j, (1-a-b)*qbar.At(i, j)+a*prev[i]*prev[j]+b*q.At(i, j))
				}
			}
			q, qNext = qNext, q
		}

		// Normalize Q_t to a correlation matrix
		for i := 0; i < n; i++ {
			qii := q.At(i, i)
			if qii <= 0 {
				return math.Inf(1)
			}
			for j := i; j < n; j++ {
				r.SetSym(i, j, q.At(i, j)/math.Sqrt(qii*q.At(j, j)))
			}
		}

		if ok := chol.Factorize(r); !ok {
			return math.Inf(1)
		}
		for i := 0; i < n; i++ {
			eps.SetVec(i, resid[t][i])
		}
		if err := chol.SolveVecTo(solved, eps); err != nil {
			return math.Inf(1)
		}
		term := chol.LogDet() + mat.Dot(eps, solved)
		if math.IsNaN(term) || math.IsInf(term, 0) {
			return math.Inf(1)
		}
		negLogLik += 0.5 * term
	}
	return negLogLik
}
