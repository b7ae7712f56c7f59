package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegeneratePoints is returned when a point set cannot constrain the requested estimate.
var ErrDegeneratePoints = errors.New("degenerate point configuration")

// normalizePoints moves the centroid to the origin and scales the mean distance to sqrt(2),
// returning the points and the 3x3 transform that does so.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d < 1e-12 {
		return nil, nil, errors.Wrap(ErrDegeneratePoints, "all points coincide")
	}
	scale := math.Sqrt(2) / d
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, nil
}

// transposeDense returns the transposed copy of m.
func transposeDense(m mat.Matrix) *mat.Dense {
	nRows, nCols := m.Dims()
	m2 := mat.NewDense(nCols, nRows, nil)
	m2.Copy(m.T())
	return m2
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U      *mat.Dense
	V      *mat.Dense
	VT     *mat.Dense
	Values []float64
}

// performSVD performs SVD on inputMatrix and returns matrices U, V, V^T and the singular values.
func performSVD(inputMatrix *mat.Dense) *matsSVD {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil
	}
	u, v, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())
	return &matsSVD{u, v, vt, svd.Values(nil)}
}

// NullVector returns the right singular vector of a with the smallest singular value, together with
// the ratio of the two smallest singular values to the largest one.
func NullVector(a *mat.Dense) ([]float64, float64, float64, error) {
	mats := performSVD(a)
	if mats == nil {
		return nil, 0, 0, errors.New("svd failed to factorize")
	}
	_, c := a.Dims()
	sv := mats.Values
	smallest, second := 0.0, 0.0
	if len(sv) == c {
		smallest = sv[c-1] / sv[0]
	}
	if len(sv) >= c-1 && c >= 2 {
		second = sv[c-2] / sv[0]
	}
	return mat.Col(nil, c-1, mats.V), smallest, second, nil
}
