package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/rimage/transform"
)

var (
	// ErrTooFewPoints is returned when there are not enough correspondences for a pose.
	ErrTooFewPoints = errors.New("not enough point correspondences")
	// ErrDegenerateGeometry is returned when the object points cannot determine a pose, e.g. all on a line.
	ErrDegenerateGeometry = errors.New("degenerate point geometry")
	// ErrSolveFailed is returned when the solver produced no usable pose.
	ErrSolveFailed = errors.New("pose solve failed")
)

const (
	minPlanarPoints    = 4
	minNonPlanarPoints = 6
	planarityTolerance = 1e-9
	// behindCameraPenalty replaces the residual of a point that projects from behind the camera.
	behindCameraPenalty = 1e6
)

// SolvePose estimates the board-to-camera pose from object points and their image corners. It reports
// false when no pose can be found.
func SolvePose(boardPoints []r3.Vector, corners []r2.Point, model *transform.PinholeCameraModel) (transform.Pose, bool) {
	pose, _, err := SolvePoseWithError(boardPoints, corners, model)
	return pose, err == nil
}

// SolvePoseWithError is SolvePose with the failure reason and the reprojection RMS in pixels.
func SolvePoseWithError(
	boardPoints []r3.Vector,
	corners []r2.Point,
	model *transform.PinholeCameraModel,
) (transform.Pose, float64, error) {
	if len(boardPoints) != len(corners) {
		return transform.Pose{}, 0, errors.Wrapf(ErrSolveFailed,
			"%d board points but %d corners", len(boardPoints), len(corners))
	}
	if len(boardPoints) < minPlanarPoints {
		return transform.Pose{}, 0, errors.Wrapf(ErrTooFewPoints, "need at least %d, got %d", minPlanarPoints, len(boardPoints))
	}
	if err := model.CheckValid(); err != nil {
		return transform.Pose{}, 0, errors.Wrap(ErrSolveFailed, err.Error())
	}

	normalized := make([]r2.Point, len(corners))
	for i, c := range corners {
		normalized[i] = model.PixelToNormalized(c)
	}
	initial, err := initialPose(boardPoints, normalized)
	if err != nil {
		return transform.Pose{}, 0, err
	}
	return refinePose(boardPoints, corners, model, initial)
}

// initialPose finds a linear pose estimate from normalized image points.
func initialPose(pts []r3.Vector, normalized []r2.Point) (transform.Pose, error) {
	centroid, basis, sv, err := principalAxes(pts)
	if err != nil {
		return transform.Pose{}, err
	}
	if sv[1] <= planarityTolerance*sv[0] {
		return transform.Pose{}, errors.Wrap(ErrDegenerateGeometry, "object points are collinear")
	}
	if sv[2] <= planarityTolerance*sv[0] {
		return planarPose(pts, normalized, centroid, basis)
	}
	if len(pts) < minNonPlanarPoints {
		return transform.Pose{}, errors.Wrapf(ErrTooFewPoints,
			"non-planar points need at least %d, got %d", minNonPlanarPoints, len(pts))
	}
	return dltPose(pts, normalized)
}

// principalAxes returns the centroid of pts, an orthonormal right-handed basis (columns) ordered by
// decreasing spread, and the singular values of the centred points.
func principalAxes(pts []r3.Vector) (r3.Vector, *mat.Dense, []float64, error) {
	var centroid r3.Vector
	for _, p := range pts {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))
	centred := mat.NewDense(len(pts), 3, nil)
	for i, p := range pts {
		d := p.Sub(centroid)
		centred.SetRow(i, []float64{d.X, d.Y, d.Z})
	}
	var svd mat.SVD
	if ok := svd.Factorize(centred, mat.SVDThin); !ok {
		return r3.Vector{}, nil, nil, errors.Wrap(ErrSolveFailed, "cannot factorize object points")
	}
	sv := svd.Values(nil)
	if sv[0] == 0 {
		return r3.Vector{}, nil, nil, errors.Wrap(ErrDegenerateGeometry, "object points coincide")
	}
	var v mat.Dense
	svd.VTo(&v)
	e1 := r3.Vector{X: v.At(0, 0), Y: v.At(1, 0), Z: v.At(2, 0)}
	e2 := r3.Vector{X: v.At(0, 1), Y: v.At(1, 1), Z: v.At(2, 1)}
	e3 := e1.Cross(e2)
	basis := mat.NewDense(3, 3, []float64{
		e1.X, e2.X, e3.X,
		e1.Y, e2.Y, e3.Y,
		e1.Z, e2.Z, e3.Z,
	})
	return centroid, basis, sv, nil
}

// planarPose fits a homography from plane coordinates to normalized image points and decomposes it.
func planarPose(pts []r3.Vector, normalized []r2.Point, centroid r3.Vector, basis *mat.Dense) (transform.Pose, error) {
	local := make([]r2.Point, len(pts))
	for i, p := range pts {
		d := p.Sub(centroid)
		local[i] = r2.Point{
			X: d.X*basis.At(0, 0) + d.Y*basis.At(1, 0) + d.Z*basis.At(2, 0),
			Y: d.X*basis.At(0, 1) + d.Y*basis.At(1, 1) + d.Z*basis.At(2, 1),
		}
	}
	h, err := transform.EstimateHomography(local, normalized)
	if err != nil {
		if errors.Is(err, transform.ErrDegeneratePoints) {
			return transform.Pose{}, errors.Wrap(ErrDegenerateGeometry, err.Error())
		}
		return transform.Pose{}, errors.Wrap(ErrSolveFailed, err.Error())
	}
	rot, t, err := decomposeHomography(h)
	if err != nil {
		return transform.Pose{}, err
	}
	// p_cam = R_local * B^T (p - c) + t
	var full mat.Dense
	full.Mul(rot, basis.T())
	pose := transform.NewPoseFromRotationMatrix(&full, r3.Vector{})
	pose.Translation = t.Sub(pose.Transform(centroid))
	return pose, nil
}

// decomposeHomography splits a plane-to-normalized-image homography into a rotation and translation
// with the plane in front of the camera.
func decomposeHomography(h mat.Matrix) (*mat.Dense, r3.Vector, error) {
	h1 := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vector{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}
	norm := (h1.Norm() + h2.Norm()) / 2
	if norm == 0 || math.IsNaN(norm) {
		return nil, r3.Vector{}, errors.Wrap(ErrSolveFailed, "homography has no rotation part")
	}
	lambda := 1 / norm
	if h3.Z < 0 {
		lambda = -lambda
	}
	r1 := h1.Mul(lambda)
	r2v := h2.Mul(lambda)
	r3v := r1.Cross(r2v)
	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2v.X, r3v.X,
		r1.Y, r2v.Y, r3v.Y,
		r1.Z, r2v.Z, r3v.Z,
	})
	rot := transform.NearestRotation(approx)
	if rot == nil {
		return nil, r3.Vector{}, errors.Wrap(ErrSolveFailed, "cannot orthonormalize rotation")
	}
	return rot, h3.Mul(lambda), nil
}

// dltPose solves the 3x4 projection matrix of a calibrated camera by direct linear transform.
func dltPose(pts []r3.Vector, normalized []r2.Point) (transform.Pose, error) {
	var centroid r3.Vector
	for _, p := range pts {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))
	spread := 0.
	for _, p := range pts {
		spread += p.Sub(centroid).Norm() / float64(len(pts))
	}
	scale := math.Sqrt(3) / spread

	a := mat.NewDense(2*len(pts), 12, nil)
	for i, p := range pts {
		q := p.Sub(centroid).Mul(scale)
		u, v := normalized[i].X, normalized[i].Y
		a.SetRow(2*i, []float64{q.X, q.Y, q.Z, 1, 0, 0, 0, 0, -u * q.X, -u * q.Y, -u * q.Z, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, q.X, q.Y, q.Z, 1, -v * q.X, -v * q.Y, -v * q.Z, -v})
	}
	sol, _, second, err := transform.NullVector(a)
	if err != nil {
		return transform.Pose{}, errors.Wrap(ErrSolveFailed, err.Error())
	}
	if second < planarityTolerance {
		return transform.Pose{}, errors.Wrap(ErrDegenerateGeometry, "projection is not uniquely determined")
	}
	p := mat.NewDense(3, 4, sol)
	m := mat.DenseCopyOf(p.Slice(0, 3, 0, 3))
	if mat.Det(m) < 0 {
		p.Scale(-1, p)
		m.Scale(-1, m)
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		return transform.Pose{}, errors.Wrap(ErrSolveFailed, "cannot factorize rotation block")
	}
	sv := svd.Values(nil)
	s := (sv[0] + sv[1] + sv[2]) / 3
	rot := transform.NearestRotation(m)
	if rot == nil || s == 0 {
		return transform.Pose{}, errors.Wrap(ErrSolveFailed, "cannot orthonormalize rotation")
	}
	// the solve was done on (p - c) * scale
	tNorm := r3.Vector{X: p.At(0, 3), Y: p.At(1, 3), Z: p.At(2, 3)}.Mul(1 / s)
	pose := transform.NewPoseFromRotationMatrix(rot, r3.Vector{})
	pose.Translation = tNorm.Mul(1 / scale).Sub(pose.Transform(centroid))
	return pose, nil
}

// refinePose minimises the pixel reprojection error over the six pose parameters.
func refinePose(
	boardPoints []r3.Vector,
	corners []r2.Point,
	model *transform.PinholeCameraModel,
	initial transform.Pose,
) (transform.Pose, float64, error) {
	f := func(dst, x []float64) {
		poseResiduals(dst, transform.NewPoseFromVector(x), boardPoints, corners, model)
	}
	res, err := levenbergMarquardt(f, initial.Vector(), 2*len(corners), defaultLMSettings())
	if err != nil {
		return transform.Pose{}, 0, errors.Wrap(ErrSolveFailed, err.Error())
	}
	pose := transform.NewPoseFromVector(res.X)
	if !pose.IsFinite() {
		return transform.Pose{}, 0, errors.Wrap(ErrSolveFailed, "pose is not finite")
	}
	for _, p := range boardPoints {
		if pose.Transform(p).Z <= 0 {
			return transform.Pose{}, 0, errors.Wrap(ErrSolveFailed, "board lies behind the camera")
		}
	}
	return pose, math.Sqrt(res.Cost / float64(len(corners))), nil
}

// poseResiduals writes the (dx, dy) pixel error of each point into dst.
func poseResiduals(
	dst []float64,
	pose transform.Pose,
	boardPoints []r3.Vector,
	corners []r2.Point,
	model *transform.PinholeCameraModel,
) {
	rot := pose.RotationMatrix()
	for i, p := range boardPoints {
		cam := r3.Vector{
			X: rot.At(0, 0)*p.X + rot.At(0, 1)*p.Y + rot.At(0, 2)*p.Z + pose.Translation.X,
			Y: rot.At(1, 0)*p.X + rot.At(1, 1)*p.Y + rot.At(1, 2)*p.Z + pose.Translation.Y,
			Z: rot.At(2, 0)*p.X + rot.At(2, 1)*p.Y + rot.At(2, 2)*p.Z + pose.Translation.Z,
		}
		px, ok := model.Project(cam)
		if !ok {
			dst[2*i], dst[2*i+1] = behindCameraPenalty, behindCameraPenalty
			continue
		}
		dst[2*i] = px.X - corners[i].X
		dst[2*i+1] = px.Y - corners[i].Y
	}
}
