package rimage

import (
	"image"

	"gonum.org/v1/gonum/mat"
)

// Kernel is a convolution kernel indexed as Content[y][x].
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// At returns the kernel weight at (x, y).
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// Size returns the kernel size as a point (width, height).
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// GetSobelX returns the Kernel corresponding to the Sobel kernel in the x direction.
func GetSobelX() Kernel {
	return Kernel{
		[][]float64{
			{-1, 0, 1},
			{-2, 0, 2},
			{-1, 0, 1},
		},
		3,
		3,
	}
}

// GetSobelY returns the Kernel corresponding to the Sobel kernel in the y direction.
func GetSobelY() Kernel {
	return Kernel{
		[][]float64{
			{-1, -2, -1},
			{0, 0, 0},
			{1, 2, 1},
		},
		3,
		3,
	}
}

// ConvolveGrayFloat64 correlates a float64 image with the kernel, anchored at the kernel centre.
// Borders replicate the nearest pixel. There is no clamping of the result.
func ConvolveGrayFloat64(m *mat.Dense, filter *Kernel) *mat.Dense {
	h, w := m.Dims()
	result := mat.NewDense(h, w, nil)
	ax, ay := filter.Width/2, filter.Height/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.
			for ky := 0; ky < filter.Height; ky++ {
				py := clampInt(y+ky-ay, 0, h-1)
				for kx := 0; kx < filter.Width; kx++ {
					kE := filter.At(kx, ky)
					if kE == 0 {
						continue
					}
					px := clampInt(x+kx-ax, 0, w-1)
					sum += m.At(py, px) * kE
				}
			}
			result.Set(y, x, sum)
		}
	}
	return result
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
