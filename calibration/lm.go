package calibration

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// residualFunc writes the residuals at x into dst.
type residualFunc func(dst, x []float64)

// lmSettings configures a Levenberg-Marquardt run.
type lmSettings struct {
	MaxIterations int
	Tolerance     float64
	InitialLambda float64
}

func defaultLMSettings() lmSettings {
	return lmSettings{MaxIterations: 100, Tolerance: 1e-10, InitialLambda: 1e-3}
}

// lmResult is the outcome of a Levenberg-Marquardt run.
type lmResult struct {
	X          []float64
	Residuals  []float64
	Cost       float64
	Iterations int
}

const (
	maxLambda = 1e16
	minLambda = 1e-16
)

// levenbergMarquardt minimises the squared norm of f starting at x0. The Jacobian is taken with central
// differences and the damped normal equations (J^T J + lambda diag(J^T J)) dx = -J^T r are solved with a
// Cholesky factorisation.
func levenbergMarquardt(f residualFunc, x0 []float64, nResiduals int, settings lmSettings) (lmResult, error) {
	n := len(x0)
	x := append([]float64(nil), x0...)
	r := make([]float64, nResiduals)
	f(r, x)
	cost := floats.Dot(r, r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return lmResult{}, errors.New("residuals are not finite at the starting point")
	}

	jac := mat.NewDense(nResiduals, n, nil)
	jacSettings := &fd.JacobianSettings{Formula: fd.Central, OriginValue: r}
	lambda := settings.InitialLambda
	xNew := make([]float64, n)
	rNew := make([]float64, nResiduals)
	var jtj mat.Dense
	grad := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	iter := 0
	for ; iter < settings.MaxIterations; iter++ {
		jacSettings.OriginValue = r
		fd.Jacobian(jac, f, x, jacSettings)
		jtj.Mul(jac.T(), jac)
		grad.MulVec(jac.T(), mat.NewVecDense(nResiduals, r))
		if mat.Norm(grad, math.Inf(1)) < settings.Tolerance {
			break
		}

		improved := false
		for lambda <= maxLambda {
			a := mat.NewSymDense(n, nil)
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					a.SetSym(i, j, jtj.At(i, j))
				}
				d := jtj.At(i, i)
				a.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
			}
			var chol mat.Cholesky
			if ok := chol.Factorize(a); !ok {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= 10
				continue
			}
			floats.SubTo(xNew, x, step.RawVector().Data)
			f(rNew, xNew)
			newCost := floats.Dot(rNew, rNew)
			if !math.IsNaN(newCost) && newCost < cost {
				improved = true
				relDrop := (cost - newCost) / math.Max(cost, 1e-300)
				stepNorm := floats.Norm(step.RawVector().Data, 2)
				copy(x, xNew)
				copy(r, rNew)
				cost = newCost
				lambda = math.Max(lambda/10, minLambda)
				if relDrop < settings.Tolerance || stepNorm < settings.Tolerance*(floats.Norm(x, 2)+settings.Tolerance) {
					return lmResult{X: x, Residuals: r, Cost: cost, Iterations: iter + 1}, nil
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}
	return lmResult{X: x, Residuals: r, Cost: cost, Iterations: iter}, nil
}
