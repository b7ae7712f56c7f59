package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/rimage"
	"go.viam.com/arcal/rimage/detection/chessboard"
	"go.viam.com/arcal/rimage/transform"
)

var boardSize = image.Point{9, 6}

func testModel(t *testing.T) *transform.PinholeCameraModel {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{800, 0, 319.5, 0, 800, 239.5, 0, 0, 1})
	model, err := transform.NewPinholeCameraModel(k, nil, 640, 480)
	test.That(t, err, test.ShouldBeNil)
	return model
}

func blankContext() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

func TestShapeToggle(t *testing.T) {
	test.That(t, ShapeCuboid.Next(), test.ShouldEqual, ShapeHouse)
	test.That(t, ShapeHouse.Next(), test.ShouldEqual, ShapeCuboid)
	test.That(t, ShapeCuboid.String(), test.ShouldEqual, "cuboid")
	test.That(t, ShapeHouse.String(), test.ShouldEqual, "house")
	test.That(t, Shape(9).String(), test.ShouldEqual, "unknown")
}

// nearPixel reports whether any pixel within two pixels of p satisfies match.
func nearPixel(img image.Image, p r2.Point, match func(r, g, b uint32) bool) bool {
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			r, g, b, _ := img.At(int(p.X)+dx, int(p.Y)+dy).RGBA()
			if match(r>>8, g>>8, b>>8) {
				return true
			}
		}
	}
	return false
}

func TestDrawAxesAndCuboid(t *testing.T) {
	model := testModel(t)
	pose := chessboard.FacingPose(boardSize, 1, 16, r3.Vector{X: 0.3})
	dc := rimage.NewContextForImage(blankContext())
	test.That(t, NewRenderer(boardSize, 1).Draw(dc, model, pose, ShapeCuboid), test.ShouldBeTrue)

	// the far base edge at x = cols-1 is yellow
	p, ok := model.Project(pose.Transform(r3.Vector{X: 8, Y: -2}))
	test.That(t, ok, test.ShouldBeTrue)
	yellow := func(r, g, b uint32) bool { return r > 200 && g > 180 && b < 60 }
	test.That(t, nearPixel(dc.Image(), p, yellow), test.ShouldBeTrue)

	// the top face is magenta
	p, ok = model.Project(pose.Transform(r3.Vector{X: 8, Y: -2, Z: 2.5}))
	test.That(t, ok, test.ShouldBeTrue)
	magenta := func(r, g, b uint32) bool { return r > 200 && g < 60 && b > 160 }
	test.That(t, nearPixel(dc.Image(), p, magenta), test.ShouldBeTrue)
}

func TestDrawAxes(t *testing.T) {
	model := testModel(t)
	pose := chessboard.FacingPose(boardSize, 1, 16, r3.Vector{X: 0.3})
	dc := rimage.NewContextForImage(blankContext())
	// the house leaves the axes near the origin uncovered
	test.That(t, NewRenderer(boardSize, 1).Draw(dc, model, pose, ShapeHouse), test.ShouldBeTrue)

	for _, tc := range []struct {
		end   r3.Vector
		match func(r, g, b uint32) bool
	}{
		{r3.Vector{X: 1.5}, func(r, g, b uint32) bool { return r > 200 && g < 60 && b < 60 }},
		{r3.Vector{Y: 1.5}, func(r, g, b uint32) bool { return r < 60 && g > 200 && b < 60 }},
		{r3.Vector{Z: 1.5}, func(r, g, b uint32) bool { return r < 60 && g < 60 && b > 200 }},
	} {
		p, ok := model.Project(pose.Transform(tc.end))
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, nearPixel(dc.Image(), p, tc.match), test.ShouldBeTrue)
	}
}

func TestDrawHouse(t *testing.T) {
	model := testModel(t)
	pose := chessboard.FacingPose(boardSize, 1, 16, r3.Vector{X: 0.5})
	dc := rimage.NewContextForImage(blankContext())
	test.That(t, NewRenderer(boardSize, 1).Draw(dc, model, pose, ShapeHouse), test.ShouldBeTrue)

	// the middle of the roof ridge is covered by a filled face
	p, _ := model.Project(pose.Transform(r3.Vector{X: 4, Y: -2.5, Z: 3.2}))
	_, _, _, alpha := dc.Image().At(int(p.X), int(p.Y)).RGBA()
	test.That(t, alpha, test.ShouldEqual, 0xffff)
}

func TestDrawBehindCamera(t *testing.T) {
	model := testModel(t)
	pose := chessboard.FacingPose(boardSize, 1, 16, r3.Vector{})
	pose.Translation.Z = -3
	dc := rimage.NewContextForImage(blankContext())
	test.That(t, NewRenderer(boardSize, 1).Draw(dc, model, pose, ShapeCuboid), test.ShouldBeFalse)
	test.That(t, NewRenderer(boardSize, 1).Draw(dc, model, pose, ShapeHouse), test.ShouldBeFalse)
}

func TestPaintOrder(t *testing.T) {
	faces := []face{
		{[]int{0}, color.Black},
		{[]int{1}, color.White},
		{[]int{0, 2}, color.Black},
	}
	ordered := paintOrder(faces, []float64{5, 10, 1})
	test.That(t, ordered[0].Vertices, test.ShouldResemble, []int{1})
	test.That(t, ordered[1].Vertices, test.ShouldResemble, []int{0})
	test.That(t, ordered[2].Vertices, test.ShouldResemble, []int{0, 2})
}

func TestDrawStatus(t *testing.T) {
	dc := rimage.NewContextForImage(blankContext())
	DrawStatus(dc)
	_, _, _, alpha := dc.Image().At(2, 2).RGBA()
	test.That(t, alpha, test.ShouldEqual, 0)
	DrawStatus(dc, "state: calibrated", "observations: 5")
	_, _, _, alpha = dc.Image().At(2, 2).RGBA()
	test.That(t, alpha, test.ShouldBeGreaterThan, 0)
}
