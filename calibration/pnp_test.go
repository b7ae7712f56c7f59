package calibration

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/rimage/detection/chessboard"
	"go.viam.com/arcal/rimage/transform"
)

func rotationDistance(a, b transform.Pose) float64 {
	var diff mat.Dense
	diff.Sub(a.RotationMatrix(), b.RotationMatrix())
	return mat.Norm(&diff, 2)
}

func TestSolvePoseBoard(t *testing.T) {
	model := trueCamera(t)
	pts := chessboard.BoardPoints(boardSize, 1)
	for _, tilt := range viewTilts {
		want := chessboard.FacingPose(boardSize, 1, 16, tilt)
		corners, ok := model.ProjectPoints(want, pts)
		test.That(t, ok, test.ShouldBeTrue)

		got, rms, err := SolvePoseWithError(pts, corners, model)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, rms, test.ShouldBeLessThan, 1e-6)
		test.That(t, got.Translation.Sub(want.Translation).Norm(), test.ShouldBeLessThan, 1e-6)
		test.That(t, rotationDistance(got, want), test.ShouldBeLessThan, 1e-6)
	}
}

func TestSolvePoseNoisy(t *testing.T) {
	model := trueCamera(t)
	pts := chessboard.BoardPoints(boardSize, 1)
	want := chessboard.FacingPose(boardSize, 1, 16, viewTilts[2])
	corners, _ := model.ProjectPoints(want, pts)
	noise := standardNoise(2 * len(corners))
	for i := range corners {
		corners[i] = corners[i].Add(r2.Point{X: 0.3 * noise[2*i], Y: 0.3 * noise[2*i+1]})
	}
	got, ok := SolvePose(pts, corners, model)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, got.Translation.Sub(want.Translation).Norm(), test.ShouldBeLessThan, 0.1)
	test.That(t, rotationDistance(got, want), test.ShouldBeLessThan, 0.01)
}

func TestSolvePoseNonPlanar(t *testing.T) {
	model := trueCamera(t)
	var pts []r3.Vector
	for i := 0; i < 10; i++ {
		f := float64(i)
		pts = append(pts, r3.Vector{X: math.Mod(f*1.7, 4), Y: math.Mod(f*2.3, 3), Z: math.Mod(f*0.9, 2.5)})
	}
	want := transform.Pose{Rotation: r3.Vector{X: 2.9, Y: 0.2, Z: -0.1}, Translation: r3.Vector{X: -1, Y: 1, Z: 14}}
	corners, ok := model.ProjectPoints(want, pts)
	test.That(t, ok, test.ShouldBeTrue)
	got, _, err := SolvePoseWithError(pts, corners, model)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Translation.Sub(want.Translation).Norm(), test.ShouldBeLessThan, 1e-6)
	test.That(t, rotationDistance(got, want), test.ShouldBeLessThan, 1e-6)

	_, _, err = SolvePoseWithError(pts[:5], corners[:5], model)
	test.That(t, errors.Is(err, ErrTooFewPoints), test.ShouldBeTrue)
}

func TestSolvePoseFailures(t *testing.T) {
	model := trueCamera(t)
	pts := chessboard.BoardPoints(boardSize, 1)
	want := chessboard.FacingPose(boardSize, 1, 16, r3.Vector{})
	corners, _ := model.ProjectPoints(want, pts)

	t.Run("too few points", func(t *testing.T) {
		_, ok := SolvePose(pts[:3], corners[:3], model)
		test.That(t, ok, test.ShouldBeFalse)
		_, _, err := SolvePoseWithError(pts[:3], corners[:3], model)
		test.That(t, errors.Is(err, ErrTooFewPoints), test.ShouldBeTrue)
	})

	t.Run("collinear", func(t *testing.T) {
		// first row of the board only
		_, _, err := SolvePoseWithError(pts[:9], corners[:9], model)
		test.That(t, errors.Is(err, ErrDegenerateGeometry), test.ShouldBeTrue)
		_, ok := SolvePose(pts[:9], corners[:9], model)
		test.That(t, ok, test.ShouldBeFalse)
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		_, ok := SolvePose(pts, corners[:10], model)
		test.That(t, ok, test.ShouldBeFalse)
	})

	t.Run("invalid model", func(t *testing.T) {
		bad := &transform.PinholeCameraModel{PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{Fx: 0, Fy: 1}}
		_, _, err := SolvePoseWithError(pts, corners, bad)
		test.That(t, errors.Is(err, ErrSolveFailed), test.ShouldBeTrue)
	})
}
