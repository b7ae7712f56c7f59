// Package overlay projects fixed 3D geometry on a detected board into the camera image.
package overlay

import (
	"image"
	"image/color"
	"sort"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/arcal/rimage"
	"go.viam.com/arcal/rimage/transform"
)

const (
	lineWidth    = 2.
	statusSize   = 14.
	statusMargin = 8
)

// Renderer draws axes and shapes anchored to the first board corner. Geometry is defined in squares and
// scaled by the board's square size.
type Renderer struct {
	size   image.Point
	square float64
}

// NewRenderer returns a renderer for a board with size interior corners (columns x rows).
func NewRenderer(size image.Point, square float64) *Renderer {
	return &Renderer{size: size, square: square}
}

func (r *Renderer) scale(pts []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = p.Mul(r.square)
	}
	return out
}

// Draw renders the axes and the selected shape. It returns false, drawing nothing, when part of the
// geometry lies behind the camera.
func (r *Renderer) Draw(dc *gg.Context, model *transform.PinholeCameraModel, pose transform.Pose, shape Shape) bool {
	axes, ok := model.ProjectPoints(pose, r.scale([]r3.Vector{
		{}, {X: axisLength}, {Y: axisLength}, {Z: axisLength},
	}))
	if !ok {
		return false
	}
	switch shape {
	case ShapeHouse:
		if !r.drawHouse(dc, model, pose) {
			return false
		}
	default:
		if !r.drawCuboid(dc, model, pose) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		rimage.DrawArrow(dc, axes[0], axes[i+1], axisColors[i], lineWidth, arrowTip)
	}
	return true
}

func (r *Renderer) drawCuboid(dc *gg.Context, model *transform.PinholeCameraModel, pose transform.Pose) bool {
	px, ok := model.ProjectPoints(pose, r.scale(cuboidVertices(r.size.X, r.size.Y)))
	if !ok {
		return false
	}
	for _, e := range cuboidEdges {
		rimage.DrawLine(dc, px[e.From], px[e.To], e.Color, lineWidth)
	}
	return true
}

func (r *Renderer) drawHouse(dc *gg.Context, model *transform.PinholeCameraModel, pose transform.Pose) bool {
	vertices := r.scale(houseVertices)
	px, ok := model.ProjectPoints(pose, vertices)
	if !ok {
		return false
	}
	depth := make([]float64, len(vertices))
	for i, v := range vertices {
		depth[i] = pose.Transform(v).Z
	}
	for _, f := range paintOrder(houseFaces, depth) {
		poly := make([]r2.Point, len(f.Vertices))
		for i, v := range f.Vertices {
			poly[i] = px[v]
		}
		rimage.FillPolygon(dc, poly, f.Color)
		rimage.DrawPolyline(dc, poly, true, houseOutlineColor, lineWidth)
	}
	return true
}

// paintOrder sorts faces farthest first by the mean camera depth of their vertices.
func paintOrder(faces []face, depth []float64) []face {
	meanDepth := func(f face) float64 {
		sum := 0.
		for _, v := range f.Vertices {
			sum += depth[v]
		}
		return sum / float64(len(f.Vertices))
	}
	out := append([]face(nil), faces...)
	sort.SliceStable(out, func(i, j int) bool { return meanDepth(out[i]) > meanDepth(out[j]) })
	return out
}

// DrawStatus writes lines of text in the top-left corner over a dark box.
func DrawStatus(dc *gg.Context, lines ...string) {
	if len(lines) == 0 {
		return
	}
	lineHeight := statusSize * 1.4
	height := lineHeight*float64(len(lines)) + statusMargin
	rimage.FillPolygon(dc, []r2.Point{
		{X: 0, Y: 0}, {X: float64(dc.Width()), Y: 0},
		{X: float64(dc.Width()), Y: height}, {X: 0, Y: height},
	}, rimage.WithAlpha(color.Black, 0.5))
	for i, line := range lines {
		rimage.DrawString(dc, line, image.Point{statusMargin, statusMargin/2 + int(lineHeight)*i}, color.White, statusSize)
	}
}
