package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// rankTolerance is the relative singular value under which a DLT system is treated as rank deficient.
const rankTolerance = 1e-9

// EstimateHomography computes H such that dst ~ H * src with the normalized direct linear transform.
// At least four correspondences are needed. The result is scaled so that H[2][2] is 1 when possible.
func EstimateHomography(src, dst []r2.Point) (*mat.Dense, error) {
	if len(src) != len(dst) {
		return nil, errors.New("sets of points src and dst must have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 point pairs for a homography, got %d", len(src))
	}
	srcN, t1, err := normalizePoints(src)
	if err != nil {
		return nil, err
	}
	dstN, t2, err := normalizePoints(dst)
	if err != nil {
		return nil, err
	}
	a := mat.NewDense(2*len(src), 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	h, _, second, err := NullVector(a)
	if err != nil {
		return nil, err
	}
	if second < rankTolerance {
		return nil, errors.Wrap(ErrDegeneratePoints, "homography is not uniquely determined")
	}
	hn := mat.NewDense(3, 3, h)

	// H = T2^-1 * Hn * T1
	var t2Inv, out mat.Dense
	if err := t2Inv.Inverse(t2); err != nil {
		return nil, errors.Wrap(err, "cannot invert normalization")
	}
	out.Mul(&t2Inv, hn)
	out.Mul(&out, t1)
	if s := out.At(2, 2); s != 0 {
		out.Scale(1/s, &out)
	}
	return &out, nil
}

// ApplyHomography maps a point through H.
func ApplyHomography(h mat.Matrix, p r2.Point) r2.Point {
	x := h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)
	y := h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}
