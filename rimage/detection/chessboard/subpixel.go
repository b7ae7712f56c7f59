package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/rimage"
)

// TermCriteria bounds an iterative refinement.
type TermCriteria struct {
	MaxIter int
	Epsilon float64
}

// RefineCorners moves each corner to the sub-pixel location where the image gradient in a
// (2*halfWin+1) square window is orthogonal to the vector from the corner, which holds at a saddle.
// Each iteration solves the Gaussian-weighted 2x2 system sum(g g^T) q = sum(g g^T p). A corner that
// drifts more than halfWin from its start is left where it started.
func RefineCorners(gray *image.Gray, corners []r2.Point, halfWin int, criteria TermCriteria) []r2.Point {
	lum := rimage.GrayToDense(rimage.MakeGray(gray))
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gx := rimage.ConvolveGrayFloat64(lum, &sobelX)
	gy := rimage.ConvolveGrayFloat64(lum, &sobelY)

	side := 2*halfWin + 1
	weights := make([]float64, side*side)
	for dy := -halfWin; dy <= halfWin; dy++ {
		for dx := -halfWin; dx <= halfWin; dx++ {
			weights[(dy+halfWin)*side+dx+halfWin] = math.Exp(-float64(dx*dx+dy*dy) / float64(halfWin*halfWin))
		}
	}

	out := make([]r2.Point, len(corners))
	for i, start := range corners {
		out[i] = refineCorner(gx, gy, start, halfWin, weights, criteria)
	}
	return out
}

func refineCorner(gx, gy *mat.Dense, start r2.Point, halfWin int, weights []float64, criteria TermCriteria) r2.Point {
	side := 2*halfWin + 1
	q := start
	for iter := 0; iter < criteria.MaxIter; iter++ {
		var a11, a12, a22, b1, b2 float64
		for dy := -halfWin; dy <= halfWin; dy++ {
			for dx := -halfWin; dx <= halfWin; dx++ {
				w := weights[(dy+halfWin)*side+dx+halfWin]
				px, py := q.X+float64(dx), q.Y+float64(dy)
				ix := rimage.BilinearAt(gx, px, py)
				iy := rimage.BilinearAt(gy, px, py)
				gxx, gxy, gyy := w*ix*ix, w*ix*iy, w*iy*iy
				a11 += gxx
				a12 += gxy
				a22 += gyy
				b1 += gxx*px + gxy*py
				b2 += gxy*px + gyy*py
			}
		}
		det := a11*a22 - a12*a12
		if math.Abs(det) < 1e-12*(a11*a22+1) {
			break
		}
		next := r2.Point{
			X: (a22*b1 - a12*b2) / det,
			Y: (a11*b2 - a12*b1) / det,
		}
		step := next.Sub(q).Norm()
		q = next
		if step < criteria.Epsilon {
			break
		}
	}
	if math.Abs(q.X-start.X) > float64(halfWin) || math.Abs(q.Y-start.Y) > float64(halfWin) ||
		math.IsNaN(q.X) || math.IsNaN(q.Y) {
		return start
	}
	return q
}
