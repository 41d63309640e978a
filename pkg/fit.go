package analyzer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// fitModel is a function of one variable with analytic parameter gradient.
type fitModel struct {
	name string
	eval func(x float64, p []float64) float64
	grad func(dst []float64, x float64, p []float64)
}

// fitPoint is one measurement; W is the inverse variance of Y.
type fitPoint struct {
	X float64
	Y float64
	W float64
}

type fitResult struct {
	Params []float64
	Errors []float64
	Chi2   float64
	NDF    int
	// EDM is the estimated distance to the minimum, in chi2 units.
	EDM float64
}

// Convergence is reached when the estimated distance to the minimum falls
// below edmTolerance (scaled by chi2/ndf for unweighted fits).
const (
	edmTolerance    = 1e-4
	gaussNewtonIter = 50
)

var errDegenerateFit = errors.New("information matrix is not positive definite")

func chi2Of(m fitModel, points []fitPoint, p []float64) float64 {
	chi2 := 0.0
	for _, pt := range points {
		r := pt.Y - m.eval(pt.X, p)
		chi2 += pt.W * r * r
	}
	if math.IsNaN(chi2) {
		return math.Inf(1)
	}
	return chi2
}

// fitOptions tune leastSquares.
type fitOptions struct {
	// UnitWeights rescales the covariance by chi2/ndf, as done for data
	// without errors.
	UnitWeights bool
	// Simplex starts with a Nelder-Mead search, for seeds that may lie
	// outside the basin of the minimum. Without it the descent stays local
	// to p0.
	Simplex bool
}

// leastSquares minimises the weighted chi2 of the model over the points,
// starting at p0. scale gives the typical magnitude of each parameter so
// that the minimisers work on values of order one. An optional simplex
// search moves away from rough seeds, BFGS descends to the minimum and
// Gauss-Newton steps settle on it.
func leastSquares(m fitModel, points []fitPoint, p0 []float64, scale []float64, opts fitOptions) (fitResult, error) {
	nPar := len(p0)
	if len(points) < nPar {
		return fitResult{}, &FitError{Fit: m.name,
			Err: fmt.Errorf("%d points for %d parameters", len(points), nPar)}
	}

	toParams := func(dst, q []float64) {
		for i := range q {
			dst[i] = q[i] * scale[i]
		}
	}
	p := make([]float64, nPar)
	dfdp := make([]float64, nPar)

	problem := optimize.Problem{
		Func: func(q []float64) float64 {
			toParams(p, q)
			return chi2Of(m, points, p)
		},
		Grad: func(grad []float64, q []float64) {
			toParams(p, q)
			for i := range grad {
				grad[i] = 0
			}
			for _, pt := range points {
				r := pt.Y - m.eval(pt.X, p)
				m.grad(dfdp, pt.X, p)
				for i := range grad {
					grad[i] -= 2 * pt.W * r * dfdp[i]
				}
			}
			for i := range grad {
				grad[i] *= scale[i]
			}
		},
	}

	q := make([]float64, nPar)
	for i := range p0 {
		q[i] = p0[i] / scale[i]
	}
	bestF := problem.Func(q)
	consider := func(res *optimize.Result) {
		if res == nil || math.IsNaN(res.F) || math.IsInf(res.F, 0) || res.F > bestF {
			return
		}
		bestF = res.F
		copy(q, res.X)
	}

	if opts.Simplex {
		simplexSettings := &optimize.Settings{
			MajorIterations: 20000,
			Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Relative: 1e-10, Iterations: 200},
		}
		simplex, _ := optimize.Minimize(problem, q, simplexSettings, &optimize.NelderMead{})
		consider(simplex)
	} else {
		start := make([]float64, nPar)
		toParams(start, q)
		if local, err := gaussNewtonPolish(m, points, start); err == nil {
			if f := chi2Of(m, points, local); f < bestF {
				bestF = f
				for i := range q {
					q[i] = local[i] / scale[i]
				}
			}
		}
	}

	// BFGS may stop on a line search failure right at the minimum; its
	// point is still used and convergence is judged below.
	settings := &optimize.Settings{
		GradientThreshold: 1e-9,
		MajorIterations:   10000,
		Converger:         &optimize.FunctionConverge{Absolute: 1e-12, Relative: 1e-12, Iterations: 100},
	}
	descent, _ := optimize.Minimize(problem, q, settings, &optimize.BFGS{})
	consider(descent)

	best := make([]float64, nPar)
	toParams(best, q)
	best, err := gaussNewtonPolish(m, points, best)
	if err != nil {
		return fitResult{}, &FitError{Fit: m.name, Err: err}
	}
	for i, v := range best {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fitResult{}, &FitError{Fit: m.name, Err: fmt.Errorf("parameter %d is not finite", i)}
		}
	}

	chi2 := chi2Of(m, points, best)
	ndf := len(points) - nPar
	cov, edm, err := gaussNewtonCovariance(m, points, best)
	if err != nil {
		return fitResult{}, &FitError{Fit: m.name, Err: err}
	}
	tolerance := edmTolerance
	if opts.UnitWeights && ndf > 0 {
		cov.ScaleSym(chi2/float64(ndf), cov)
		tolerance = edmTolerance*chi2/float64(ndf) + 1e-18
	}
	if edm > tolerance {
		return fitResult{}, &FitError{Fit: m.name,
			Err: fmt.Errorf("estimated distance to minimum %.3g above %.3g", edm, tolerance)}
	}

	errs := make([]float64, nPar)
	for i := range errs {
		errs[i] = math.Sqrt(math.Abs(cov.At(i, i)))
	}
	return fitResult{
		Params: best,
		Errors: errs,
		Chi2:   chi2,
		NDF:    ndf,
		EDM:    edm,
	}, nil
}

// normalEquations returns J^T W J and J^T W r at p.
func normalEquations(m fitModel, points []fitPoint, p []float64) (*mat.SymDense, *mat.VecDense) {
	nPar := len(p)
	info := mat.NewSymDense(nPar, nil)
	rhs := mat.NewVecDense(nPar, nil)
	dfdp := make([]float64, nPar)
	for _, pt := range points {
		m.grad(dfdp, pt.X, p)
		r := pt.Y - m.eval(pt.X, p)
		for i := 0; i < nPar; i++ {
			rhs.SetVec(i, rhs.AtVec(i)+pt.W*dfdp[i]*r)
			for j := i; j < nPar; j++ {
				info.SetSym(i, j, info.At(i, j)+pt.W*dfdp[i]*dfdp[j])
			}
		}
	}
	return info, rhs
}

// gaussNewtonPolish takes damped Gauss-Newton steps from p while they
// lower the chi2.
func gaussNewtonPolish(m fitModel, points []fitPoint, p []float64) ([]float64, error) {
	current := append([]float64(nil), p...)
	chi2 := chi2Of(m, points, current)
	trial := make([]float64, len(p))
	for iter := 0; iter < gaussNewtonIter; iter++ {
		info, rhs := normalEquations(m, points, current)
		var chol mat.Cholesky
		if ok := chol.Factorize(info); !ok {
			return nil, errDegenerateFit
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, rhs); err != nil {
			return nil, fmt.Errorf("solving normal equations: %w", err)
		}

		improved := false
		for damping := 1.0; damping > 1e-4; damping /= 2 {
			for i := range trial {
				trial[i] = current[i] + damping*step.AtVec(i)
			}
			if c := chi2Of(m, points, trial); c < chi2 {
				copy(current, trial)
				improved = chi2-c > 1e-12*(1+chi2)
				chi2 = c
				break
			}
		}
		if !improved {
			break
		}
	}
	return current, nil
}

// gaussNewtonCovariance returns (J^T W J)^-1 at p and the estimated
// distance to the minimum, b^T (J^T W J)^-1 b with b = J^T W r.
func gaussNewtonCovariance(m fitModel, points []fitPoint, p []float64) (*mat.SymDense, float64, error) {
	info, rhs := normalEquations(m, points, p)
	var chol mat.Cholesky
	if ok := chol.Factorize(info); !ok {
		return nil, 0, errDegenerateFit
	}
	cov := mat.NewSymDense(len(p), nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, 0, fmt.Errorf("inverting information matrix: %w", err)
	}
	edm := mat.Inner(rhs, cov, rhs)
	return cov, edm, nil
}

// inverseVarianceWeights turns standard errors into weights. Points with a
// non-positive error take the smallest positive error of the set; if no
// error is positive all weights are one and unit reports true.
func inverseVarianceWeights(errs []float64) (weights []float64, unit bool) {
	minErr := math.Inf(1)
	for _, e := range errs {
		if e > 0 && e < minErr {
			minErr = e
		}
	}
	weights = make([]float64, len(errs))
	if math.IsInf(minErr, 1) {
		for i := range weights {
			weights[i] = 1
		}
		return weights, true
	}
	for i, e := range errs {
		if e <= 0 {
			e = minErr
		}
		weights[i] = 1 / (e * e)
	}
	return weights, false
}
