package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/rimage/transform"
)

const (
	boardBlack      = 20
	boardWhite      = 235
	boardBackground = 140
	renderSamples   = 3
)

// BoardPoints returns the board-frame coordinates of the interior corners in row-major order. Corner
// (r, c) sits at (c*square, -r*square, 0): X runs along a row, Y points up the printed board and Z = X x Y
// points out of the printed face.
func BoardPoints(size image.Point, square float64) []r3.Vector {
	pts := make([]r3.Vector, 0, size.X*size.Y)
	for r := 0; r < size.Y; r++ {
		for c := 0; c < size.X; c++ {
			pts = append(pts, r3.Vector{X: float64(c) * square, Y: -float64(r) * square})
		}
	}
	return pts
}

// FacingPose returns the pose that puts the board centre at distance straight ahead of the camera with the
// printed face toward it, rows running down the image, then turns the board by the axis-angle tilt (camera
// frame) about its centre.
func FacingPose(size image.Point, square, distance float64, tilt r3.Vector) transform.Pose {
	facing := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, -1, 0,
		0, 0, -1,
	})
	var rot mat.Dense
	rot.Mul(transform.Pose{Rotation: tilt}.RotationMatrix(), facing)
	centre := r3.Vector{X: float64(size.X-1) * square / 2, Y: -float64(size.Y-1) * square / 2}
	pose := transform.NewPoseFromRotationMatrix(&rot, r3.Vector{})
	pose.Translation = r3.Vector{Z: distance}.Sub(pose.Transform(centre))
	return pose
}

// boardShade returns the gray level of the printed board at board coordinates (x, y). The board has
// one more square than interior corners along each side, surrounded by a one-square white margin.
func boardShade(x, y float64, size image.Point, square float64) float64 {
	c := math.Floor(x / square)
	r := math.Floor(-y / square)
	cols, rows := float64(size.X), float64(size.Y)
	switch {
	case c < -2 || c > cols || r < -2 || r > rows:
		return boardBackground
	case c < -1 || c > cols-1 || r < -1 || r > rows-1:
		return boardWhite
	}
	if (int(c)+int(r))&1 == 0 {
		return boardBlack
	}
	return boardWhite
}

// RenderBoard draws the board as seen through model at pose into a width x height grayscale image,
// averaging a 3x3 grid of rays per pixel. Rays that miss the front of the board see a flat background.
func RenderBoard(
	model *transform.PinholeCameraModel,
	pose transform.Pose,
	size image.Point,
	square float64,
	width, height int,
) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	rot := pose.RotationMatrix()
	// board frame quantities: R^T t and, per ray, R^T d
	rtT := r3.Vector{
		X: rot.At(0, 0)*pose.Translation.X + rot.At(1, 0)*pose.Translation.Y + rot.At(2, 0)*pose.Translation.Z,
		Y: rot.At(0, 1)*pose.Translation.X + rot.At(1, 1)*pose.Translation.Y + rot.At(2, 1)*pose.Translation.Z,
		Z: rot.At(0, 2)*pose.Translation.X + rot.At(1, 2)*pose.Translation.Y + rot.At(2, 2)*pose.Translation.Z,
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := 0.
			for sy := 0; sy < renderSamples; sy++ {
				for sx := 0; sx < renderSamples; sx++ {
					px := r2.Point{
						X: float64(x) + (float64(sx)+0.5)/renderSamples - 0.5,
						Y: float64(y) + (float64(sy)+0.5)/renderSamples - 0.5,
					}
					n := model.PixelToNormalized(px)
					dX := rot.At(0, 0)*n.X + rot.At(1, 0)*n.Y + rot.At(2, 0)
					dY := rot.At(0, 1)*n.X + rot.At(1, 1)*n.Y + rot.At(2, 1)
					dZ := rot.At(0, 2)*n.X + rot.At(1, 2)*n.Y + rot.At(2, 2)
					if math.Abs(dZ) < 1e-12 {
						sum += boardBackground
						continue
					}
					lambda := rtT.Z / dZ
					if lambda <= 0 {
						sum += boardBackground
						continue
					}
					sum += boardShade(lambda*dX-rtT.X, lambda*dY-rtT.Y, size, square)
				}
			}
			img.Pix[y*img.Stride+x] = uint8(math.Round(sum / (renderSamples * renderSamples)))
		}
	}
	return img
}
