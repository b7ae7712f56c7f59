package calibration

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestLevenbergMarquardtCurveFit(t *testing.T) {
	// y = a * exp(b * x) + c
	a, b, c := 2.5, -1.3, 0.7
	xs := make([]float64, 30)
	ys := make([]float64, 30)
	for i := range xs {
		xs[i] = float64(i) / 10
		ys[i] = a*math.Exp(b*xs[i]) + c
	}
	f := func(dst, p []float64) {
		for i, x := range xs {
			dst[i] = p[0]*math.Exp(p[1]*x) + p[2] - ys[i]
		}
	}
	res, err := levenbergMarquardt(f, []float64{1, -0.5, 0}, len(xs), defaultLMSettings())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.X[0], test.ShouldAlmostEqual, a, 1e-6)
	test.That(t, res.X[1], test.ShouldAlmostEqual, b, 1e-6)
	test.That(t, res.X[2], test.ShouldAlmostEqual, c, 1e-6)
	test.That(t, res.Cost, test.ShouldBeLessThan, 1e-12)
	test.That(t, res.Iterations, test.ShouldBeGreaterThan, 0)
}

func TestLevenbergMarquardtNonFiniteStart(t *testing.T) {
	f := func(dst, p []float64) {
		dst[0] = math.Log(p[0])
	}
	_, err := levenbergMarquardt(f, []float64{-1}, 1, defaultLMSettings())
	test.That(t, err, test.ShouldNotBeNil)
}
