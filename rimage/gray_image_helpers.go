package rimage

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
)

// MakeGray converts any image to an 8-bit grayscale image whose bounds start at the origin.
func MakeGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// after Grayscale all three channels hold the luminance.
			gray.Pix[y*gray.Stride+x] = nrgba.Pix[y*nrgba.Stride+4*x]
		}
	}
	return gray
}

// BlurGray applies a Gaussian blur with the given sigma. A non-positive sigma returns the input.
func BlurGray(gray *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return gray
	}
	return MakeGray(imaging.Blur(gray, sigma))
}

// GrayToDense converts a grayscale image to a float matrix indexed (row=y, col=x).
func GrayToDense(gray *image.Gray) *mat.Dense {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[(y)*gray.Stride : (y)*gray.Stride+w]
		for x, v := range row {
			data[y*w+x] = float64(v)
		}
	}
	return mat.NewDense(h, w, data)
}

// BilinearAt samples m at the sub-pixel location (x, y), replicating border pixels.
func BilinearAt(m mat.Matrix, x, y float64) float64 {
	h, w := m.Dims()
	x = math.Max(0, math.Min(x, float64(w-1)))
	y = math.Max(0, math.Min(y, float64(h-1)))
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := clampInt(x0+1, 0, w-1), clampInt(y0+1, 0, h-1)
	fx, fy := x-float64(x0), y-float64(y0)
	top := (1-fx)*m.At(y0, x0) + fx*m.At(y0, x1)
	bottom := (1-fx)*m.At(y1, x0) + fx*m.At(y1, x1)
	return (1-fy)*top + fy*bottom
}
