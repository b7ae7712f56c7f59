package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func testModel(t *testing.T) *PinholeCameraModel {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{
		800, 0, 319.5,
		0, 810, 239.5,
		0, 0, 1,
	})
	model, err := NewPinholeCameraModel(k, []float64{-0.2, 0.05, 0.001, -0.0005, 0.01}, 640, 480)
	test.That(t, err, test.ShouldBeNil)
	return model
}

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	good := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240}
	test.That(t, good.CheckValid(), test.ShouldBeNil)

	unknownSize := *good
	unknownSize.Width, unknownSize.Height = 0, 0
	test.That(t, unknownSize.CheckValid(), test.ShouldBeNil)

	for name, mutate := range map[string]func(p *PinholeCameraIntrinsics){
		"negative size": func(p *PinholeCameraIntrinsics) { p.Width = -1 },
		"zero fx":       func(p *PinholeCameraIntrinsics) { p.Fx = 0 },
		"negative fy":   func(p *PinholeCameraIntrinsics) { p.Fy = -3 },
		"negative ppx":  func(p *PinholeCameraIntrinsics) { p.Ppx = -1 },
		"negative ppy":  func(p *PinholeCameraIntrinsics) { p.Ppy = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			bad := *good
			mutate(&bad)
			test.That(t, errors.Is(bad.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)
		})
	}
}

func TestIntrinsicsFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intrinsics.json")
	err := os.WriteFile(path, []byte(`{"width_px": 640, "height_px": 480, "fx": 700, "fy": 701, "ppx": 320, "ppy": 240}`), 0o600)
	test.That(t, err, test.ShouldBeNil)
	intr, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intr.Fy, test.ShouldEqual, 701)
	test.That(t, intr.GetCameraMatrix().At(1, 2), test.ShouldEqual, 240)

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPixelPointRoundTrip(t *testing.T) {
	intr := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 400, Ppx: 320, Ppy: 240}
	x, y, z := intr.PixelToPoint(420, 140, 2)
	u, v := intr.PointToPixel(x, y, z)
	test.That(t, u, test.ShouldAlmostEqual, 420)
	test.That(t, v, test.ShouldAlmostEqual, 140)
	u, v = intr.PointToPixel(1, 1, 0)
	test.That(t, u, test.ShouldEqual, -1)
	test.That(t, v, test.ShouldEqual, -1)
}

func TestModelProjection(t *testing.T) {
	model := testModel(t)
	test.That(t, model.Parameters(), test.ShouldResemble, []float64{-0.2, 0.05, 0.001, -0.0005, 0.01})
	test.That(t, model.CameraMatrix().At(0, 0), test.ShouldEqual, 800)

	for _, px := range []r2.Point{{X: 319.5, Y: 239.5}, {X: 10, Y: 15}, {X: 600, Y: 400}, {X: 100, Y: 420}} {
		n := model.PixelToNormalized(px)
		back := model.NormalizedToPixel(n.X, n.Y)
		test.That(t, back.X, test.ShouldAlmostEqual, px.X, 1e-6)
		test.That(t, back.Y, test.ShouldAlmostEqual, px.Y, 1e-6)
	}

	_, ok := model.Project(r3.Vector{X: 1, Y: 1, Z: -1})
	test.That(t, ok, test.ShouldBeFalse)
	centre, ok := model.Project(r3.Vector{Z: 5})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, centre.X, test.ShouldAlmostEqual, 319.5)
	test.That(t, centre.Y, test.ShouldAlmostEqual, 239.5)

	pose := Pose{Translation: r3.Vector{Z: 10}}
	pts, ok := model.ProjectPoints(pose, []r3.Vector{{}, {X: 1}})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, pts[1].X, test.ShouldBeGreaterThan, pts[0].X)
	_, ok = model.ProjectPoints(pose, []r3.Vector{{Z: -20}})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestModelWithSize(t *testing.T) {
	model := testModel(t)
	resized := model.WithSize(100, 50)
	test.That(t, resized.Width, test.ShouldEqual, 100)
	test.That(t, model.Width, test.ShouldEqual, 640)
	resized.Distortion.RadialK1 = 3
	test.That(t, model.Distortion.RadialK1, test.ShouldEqual, -0.2)
}

func TestNewPinholeCameraModelErrors(t *testing.T) {
	_, err := NewPinholeCameraModel(mat.NewDense(2, 2, nil), nil, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPinholeCameraModel(eye(3), make([]float64, 6), 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPinholeCameraModel(mat.NewDense(3, 3, nil), nil, 0, 0)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}
