package chessboard

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/rimage"
)

// ringSamples is the number of intensities sampled around a saddle candidate.
const ringSamples = 32

// minRingContrast is the smallest gray-level spread on the ring for a candidate to count as a junction.
const minRingContrast = 16.

// maxCandidates caps the number of saddle candidates handed to lattice growth.
const maxCandidates = 400

// saddleCandidate is a local maximum of the saddle map.
type saddleCandidate struct {
	Pt       image.Point
	Response float64
}

// computePixelWiseHessianDeterminant computes hessian components for each pixel and returns a *mat.Dense containing
// the value of the determinant of the Hessian for each pixel.
// The sign and value of the determinant of the Hessian gives location of saddle points.
func computePixelWiseHessianDeterminant(img *mat.Dense) *mat.Dense {
	nRows, nCols := img.Dims()
	sobelX := rimage.GetSobelX()
	sobelY := rimage.GetSobelY()
	gX := rimage.ConvolveGrayFloat64(img, &sobelX)
	gY := rimage.ConvolveGrayFloat64(img, &sobelY)
	gXX := rimage.ConvolveGrayFloat64(gX, &sobelX)
	gYY := rimage.ConvolveGrayFloat64(gY, &sobelY)
	gXY := rimage.ConvolveGrayFloat64(gX, &sobelY)
	m1 := mat.NewDense(nRows, nCols, nil)
	m2 := mat.NewDense(nRows, nCols, nil)
	out := mat.NewDense(nRows, nCols, nil)
	m1.MulElem(gXX, gYY)
	m2.MulElem(gXY, gXY)
	out.Sub(m1, m2)
	return out
}

// SaddleMap returns the negative determinant of the Hessian with negative values set to zero,
// so that X-junctions become positive peaks.
func SaddleMap(img *mat.Dense) *mat.Dense {
	hessian := computePixelWiseHessianDeterminant(img)
	hessian.Apply(func(_, _ int, v float64) float64 {
		if v >= 0 {
			return 0
		}
		return -v
	}, hessian)
	return hessian
}

// NonMaxSuppression returns the points of s that are the strict maximum of their (2*winSize+1) square
// neighbourhood and at least ratio times the global maximum. Ties go to the first pixel in raster order.
// Points are sorted by decreasing response.
func NonMaxSuppression(s *mat.Dense, winSize int, ratio float64) []saddleCandidate {
	h, w := s.Dims()
	maxResp := mat.Max(s)
	if maxResp <= 0 {
		return nil
	}
	thresh := ratio * maxResp
	raw := s.RawMatrix()
	at := func(y, x int) float64 { return raw.Data[y*raw.Stride+x] }
	var out []saddleCandidate
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := at(y, x)
			if v <= 0 || v < thresh {
				continue
			}
			isMax := true
			for yy := max(0, y-winSize); yy <= min(h-1, y+winSize) && isMax; yy++ {
				for xx := max(0, x-winSize); xx <= min(w-1, x+winSize); xx++ {
					n := at(yy, xx)
					if n > v || (n == v && (yy < y || (yy == y && xx < x))) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				out = append(out, saddleCandidate{Pt: image.Point{x, y}, Response: v})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Response > out[j].Response })
	return out
}

// isXJunction samples lum on a circle around pt and checks that the intensities, binarized at their
// mid-range, alternate exactly four times. Board-border L and T junctions alternate twice.
func isXJunction(lum *mat.Dense, pt image.Point, radius float64) bool {
	samples := make([]float64, ringSamples)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range samples {
		a := 2 * math.Pi * float64(i) / ringSamples
		v := rimage.BilinearAt(lum, float64(pt.X)+radius*math.Cos(a), float64(pt.Y)+radius*math.Sin(a))
		samples[i] = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < minRingContrast {
		return false
	}
	mid := (hi + lo) / 2
	transitions := 0
	for i := range samples {
		if (samples[i] > mid) != (samples[(i+1)%ringSamples] > mid) {
			transitions++
		}
	}
	return transitions == 4
}

// findSaddlePoints runs the saddle map, non-maximum suppression and the X-junction ring check on a blurred
// luminance matrix.
func findSaddlePoints(lum *mat.Dense, cfg Config) []saddleCandidate {
	h, w := lum.Dims()
	border := int(math.Ceil(cfg.RingRadius)) + 1
	var out []saddleCandidate
	for _, c := range NonMaxSuppression(SaddleMap(lum), cfg.NMSWindow, cfg.ResponseRatio) {
		if c.Pt.X < border || c.Pt.Y < border || c.Pt.X >= w-border || c.Pt.Y >= h-border {
			continue
		}
		if !isXJunction(lum, c.Pt, cfg.RingRadius) {
			continue
		}
		out = append(out, c)
		if len(out) == maxCandidates {
			break
		}
	}
	return out
}
