package analyzer

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// Working point definition: voltage at which the sigmoid reaches 95% of its
// plateau, plus a fixed safety margin.
var ln19 = math.Log(19)

const WorkingPointMargin = 150.0 // V

// SigmoidPoint is one efficiency measurement of a scan.
type SigmoidPoint struct {
	Voltage    float64
	Efficiency float64
	Err        float64
}

// SigmoidSeed is the starting point of the sigmoid fit.
type SigmoidSeed struct {
	Emax   float64
	Lambda float64
	HV50   float64
}

// DefaultSigmoidSeed returns emax 0.98 (98 when the efficiencies are in
// percent), lambda 0.011 /V and hv50 at the middle of the scanned range.
func DefaultSigmoidSeed(points []SigmoidPoint, percent bool) SigmoidSeed {
	seed := SigmoidSeed{Emax: 0.98, Lambda: 0.011, HV50: 7000}
	if percent {
		seed.Emax *= 100
	}
	if len(points) > 0 {
		lo, hi := points[0].Voltage, points[0].Voltage
		for _, p := range points[1:] {
			lo = math.Min(lo, p.Voltage)
			hi = math.Max(hi, p.Voltage)
		}
		seed.HV50 = 0.5 * (lo + hi)
	}
	return seed
}

// SigmoidFit holds the parameters of emax/(1+exp(lambda*(hv50-V))).
type SigmoidFit struct {
	Emax      float64
	Lambda    float64
	HV50      float64
	EmaxErr   float64
	LambdaErr float64
	HV50Err   float64
	Chi2      float64
	NDF       int
}

// Eval is the fitted efficiency at voltage v.
func (f SigmoidFit) Eval(v float64) float64 {
	return f.Emax * logistic(f.Lambda*(v-f.HV50))
}

// logistic is 1/(1+exp(-z)).
func logistic(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

var sigmoidModel = fitModel{
	name: "sigmoid",
	eval: func(v float64, p []float64) float64 {
		return p[0] * logistic(p[1]*(v-p[2]))
	},
	grad: func(dst []float64, v float64, p []float64) {
		s := logistic(p[1] * (v - p[2]))
		ds := s * (1 - s)
		dst[0] = s
		dst[1] = p[0] * ds * (v - p[2])
		dst[2] = -p[0] * ds * p[1]
	},
}

// FitSigmoid fits the efficiency curve with a weighted least squares fit.
// Points with zero error take the smallest error of the scan; when no point
// has an error the fit is unweighted.
func FitSigmoid(points []SigmoidPoint, seed SigmoidSeed) (SigmoidFit, error) {
	if len(points) < 3 {
		return SigmoidFit{}, &FitError{Fit: sigmoidModel.name,
			Err: fmt.Errorf("%d points for 3 parameters", len(points))}
	}
	if seed.Lambda == 0 {
		return SigmoidFit{}, &FitError{Fit: sigmoidModel.name, Err: fmt.Errorf("seed lambda must not be zero")}
	}

	errs := make([]float64, len(points))
	for i, p := range points {
		errs[i] = p.Err
	}
	weights, unit := inverseVarianceWeights(errs)
	fitPoints := make([]fitPoint, len(points))
	for i, p := range points {
		fitPoints[i] = fitPoint{X: p.Voltage, Y: p.Efficiency, W: weights[i]}
	}
	slices.SortFunc(fitPoints, func(a, b fitPoint) int {
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		}
		return 0
	})

	p0 := []float64{seed.Emax, seed.Lambda, seed.HV50}
	scale := []float64{nonZero(seed.Emax), math.Abs(seed.Lambda), nonZero(seed.HV50)}
	res, err := leastSquares(sigmoidModel, fitPoints, p0, scale, fitOptions{UnitWeights: unit, Simplex: true})
	if err != nil {
		return SigmoidFit{}, err
	}
	fit := SigmoidFit{
		Emax:      res.Params[0],
		Lambda:    res.Params[1],
		HV50:      res.Params[2],
		EmaxErr:   res.Errors[0],
		LambdaErr: res.Errors[1],
		HV50Err:   res.Errors[2],
		Chi2:      res.Chi2,
		NDF:       res.NDF,
	}
	if fit.Lambda == 0 {
		return SigmoidFit{}, &FitError{Fit: sigmoidModel.name, Err: fmt.Errorf("slope converged to zero")}
	}
	return fit, nil
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return math.Abs(v)
}

// WorkingPoint is the operating voltage derived from a sigmoid fit.
type WorkingPoint struct {
	Voltage    float64
	VoltageErr float64
	Efficiency float64
	Emax       float64
}

// NewWorkingPoint computes ln(19)/lambda + hv50 + 150. The error ignores the
// lambda/hv50 correlation.
func NewWorkingPoint(fit SigmoidFit) WorkingPoint {
	wp := ln19/fit.Lambda + fit.HV50 + WorkingPointMargin
	dInvLambda := fit.LambdaErr / (fit.Lambda * fit.Lambda)
	return WorkingPoint{
		Voltage:    wp,
		VoltageErr: math.Hypot(ln19*dInvLambda, fit.HV50Err),
		Efficiency: fit.Eval(wp),
		Emax:       fit.Emax,
	}
}
