// Package transform provides camera models, poses and the geometry relying on them.
package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// minDepth is the smallest camera-frame depth that is still considered in front of the camera.
const minDepth = 1e-9

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
// A zero Width or Height means the image size is unknown, which is the case for parameters read back from a
// calibration file.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width < 0 || params.Height < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	for _, v := range []float64{params.Fx, params.Fy, params.Ppx, params.Ppy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNoIntrinsicsError(fmt.Sprintf("Non-finite parameter %v", v))
		}
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// PixelToPoint transforms a pixel with depth to a 3D point in the camera frame, ignoring lens distortion.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point in the camera frame to sub-pixel image coordinates, ignoring lens distortion.
// Points on or behind the image plane return (-1, -1).
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z > minDepth {
		return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy
	}
	return -1.0, -1.0
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// PinholeCameraModel is the model of a pinhole camera with Brown-Conrady lens distortion.
// A model is treated as a value: callers replace it wholesale instead of editing its fields.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               *BrownConrady `json:"distortion"`
}

// NewPinholeCameraModel builds a model from a 3x3 camera matrix and up to five distortion
// coefficients in (k1, k2, p1, p2, k3) order.
func NewPinholeCameraModel(cameraMatrix mat.Matrix, distortion []float64, width, height int) (*PinholeCameraModel, error) {
	r, c := cameraMatrix.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("camera matrix must be 3x3, got %dx%d", r, c)
	}
	bc, err := NewBrownConrady(distortion)
	if err != nil {
		return nil, err
	}
	model := &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{
			Width:  width,
			Height: height,
			Fx:     cameraMatrix.At(0, 0),
			Fy:     cameraMatrix.At(1, 1),
			Ppx:    cameraMatrix.At(0, 2),
			Ppy:    cameraMatrix.At(1, 2),
		},
		Distortion: bc,
	}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}

// CheckValid checks the intrinsics and the distortion parameters.
func (m *PinholeCameraModel) CheckValid() error {
	if m == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := m.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if m.Distortion == nil {
		return nil
	}
	return m.Distortion.CheckValid()
}

// CameraMatrix returns the 3x3 camera matrix.
func (m *PinholeCameraModel) CameraMatrix() *mat.Dense {
	return m.GetCameraMatrix()
}

// Parameters returns the five distortion coefficients in (k1, k2, p1, p2, k3) order.
func (m *PinholeCameraModel) Parameters() []float64 {
	if m.Distortion == nil {
		return make([]float64, 5)
	}
	return m.Distortion.Parameters()
}

// WithSize returns a copy of the model with the image size set.
func (m *PinholeCameraModel) WithSize(width, height int) *PinholeCameraModel {
	intr := *m.PinholeCameraIntrinsics
	intr.Width, intr.Height = width, height
	out := &PinholeCameraModel{PinholeCameraIntrinsics: &intr}
	if m.Distortion != nil {
		d := *m.Distortion
		out.Distortion = &d
	}
	return out
}

// NormalizedToPixel distorts a point on the normalized image plane and maps it to pixel coordinates.
func (m *PinholeCameraModel) NormalizedToPixel(x, y float64) r2.Point {
	if m.Distortion != nil {
		x, y = m.Distortion.Transform(x, y)
	}
	return r2.Point{X: x*m.Fx + m.Ppx, Y: y*m.Fy + m.Ppy}
}

// PixelToNormalized removes the camera matrix and the lens distortion from a pixel, returning the
// point on the normalized image plane.
func (m *PinholeCameraModel) PixelToNormalized(p r2.Point) r2.Point {
	x := (p.X - m.Ppx) / m.Fx
	y := (p.Y - m.Ppy) / m.Fy
	if m.Distortion != nil {
		x, y = m.Distortion.Inverse().Transform(x, y)
	}
	return r2.Point{X: x, Y: y}
}

// Project projects a point given in the camera frame. It returns false for points on or behind the
// image plane.
func (m *PinholeCameraModel) Project(p r3.Vector) (r2.Point, bool) {
	if p.Z <= minDepth {
		return r2.Point{}, false
	}
	return m.NormalizedToPixel(p.X/p.Z, p.Y/p.Z), true
}

// ProjectPoints moves object points into the camera frame with pose and projects them. The boolean is
// false when any point lies behind the camera; the returned slice is still filled for the others.
func (m *PinholeCameraModel) ProjectPoints(pose Pose, pts []r3.Vector) ([]r2.Point, bool) {
	out := make([]r2.Point, len(pts))
	rot := pose.RotationMatrix()
	allInFront := true
	for i, p := range pts {
		px, ok := m.Project(transformWithMatrix(rot, pose.Translation, p))
		if !ok {
			allInFront = false
			continue
		}
		out[i] = px
	}
	return out, allInFront
}
