// Package rimage provides the grayscale and drawing primitives shared by detection and overlay code.
package rimage

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	regular *truetype.Font

	facesMu sync.Mutex
	faces   = map[float64]*sync.Pool{}
)

// init sets up the fonts we want to use.
func init() {
	var err error
	regular, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return regular
}

// facePool returns the pool of faces for size. A truetype face caches glyphs and is not safe for
// concurrent use, so each caller takes one out for the duration of a draw.
func facePool(size float64) *sync.Pool {
	facesMu.Lock()
	defer facesMu.Unlock()
	pool, ok := faces[size]
	if !ok {
		pool = &sync.Pool{New: func() interface{} {
			return truetype.NewFace(regular, &truetype.Options{Size: size})
		}}
		faces[size] = pool
	}
	return pool
}

// NewContextForImage returns a drawing context holding an RGBA copy of img.
func NewContextForImage(img image.Image) *gg.Context {
	return gg.NewContextForImage(img)
}

// MustColor parses a hex colour such as "#ff8800" and panics on malformed input. It is meant
// for package-level colour tables.
func MustColor(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		panic(err)
	}
	return c
}

// WithAlpha returns c with the given opacity in [0, 1].
func WithAlpha(c color.Color, alpha float64) color.Color {
	r, g, b, _ := c.RGBA()
	a := math.Max(0, math.Min(1, alpha))
	return color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a * 255)}
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	pool := facePool(size)
	face := pool.Get().(font.Face)
	defer pool.Put(face)
	dc.SetFontFace(face)
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawLine strokes a straight segment.
func DrawLine(dc *gg.Context, from, to r2.Point, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawLine(from.X, from.Y, to.X, to.Y)
	dc.Stroke()
}

// DrawArrow strokes a segment from `from` to `to` with a two-stroke head at `to`. The head
// length is tipLength times the shaft length.
func DrawArrow(dc *gg.Context, from, to r2.Point, c color.Color, width, tipLength float64) {
	DrawLine(dc, from, to, c, width)
	shaft := to.Sub(from)
	length := shaft.Norm()
	if length == 0 {
		return
	}
	angle := math.Atan2(shaft.Y, shaft.X)
	head := tipLength * length
	for _, side := range []float64{math.Pi / 4, -math.Pi / 4} {
		tip := r2.Point{
			X: to.X - head*math.Cos(angle+side),
			Y: to.Y - head*math.Sin(angle+side),
		}
		DrawLine(dc, to, tip, c, width)
	}
}

// DrawPolyline strokes the given points in order, optionally closing the path.
func DrawPolyline(dc *gg.Context, pts []r2.Point, closed bool, c color.Color, width float64) {
	if len(pts) < 2 {
		return
	}
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	if closed {
		dc.ClosePath()
	}
	dc.Stroke()
}

// FillPolygon fills the polygon described by pts.
func FillPolygon(dc *gg.Context, pts []r2.Point, c color.Color) {
	if len(pts) < 3 {
		return
	}
	dc.SetColor(c)
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
	dc.Fill()
}

// DrawCircle strokes a circle of radius r centred on p.
func DrawCircle(dc *gg.Context, p r2.Point, r float64, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawCircle(p.X, p.Y, r)
	dc.Stroke()
}
