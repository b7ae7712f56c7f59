package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is the rigid transform taking board coordinates into the camera frame:
// p_cam = R(Rotation) * p_board + Translation. Rotation is an axis-angle vector whose
// length is the angle in radians.
type Pose struct {
	Rotation    r3.Vector
	Translation r3.Vector
}

// NewPoseFromRotationMatrix converts a 3x3 rotation matrix and a translation into a Pose.
func NewPoseFromRotationMatrix(rot mat.Matrix, translation r3.Vector) Pose {
	return Pose{Rotation: quatToAxisAngle(rotationMatrixToQuat(rot)), Translation: translation}
}

// NewPoseFromVector reads (rx, ry, rz, tx, ty, tz).
func NewPoseFromVector(v []float64) Pose {
	return Pose{
		Rotation:    r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		Translation: r3.Vector{X: v[3], Y: v[4], Z: v[5]},
	}
}

// Vector returns (rx, ry, rz, tx, ty, tz).
func (p Pose) Vector() []float64 {
	return []float64{p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Translation.X, p.Translation.Y, p.Translation.Z}
}

// Quaternion returns the rotation as a unit quaternion.
func (p Pose) Quaternion() quat.Number {
	return axisAngleToQuat(p.Rotation)
}

// RotationMatrix returns the 3x3 rotation matrix.
func (p Pose) RotationMatrix() *mat.Dense {
	q := p.Quaternion()
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// Transform maps a board point into the camera frame.
func (p Pose) Transform(pt r3.Vector) r3.Vector {
	q := p.Quaternion()
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: pt.X, Jmag: pt.Y, Kmag: pt.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}.Add(p.Translation)
}

// IsFinite reports whether every component is a finite number.
func (p Pose) IsFinite() bool {
	for _, v := range p.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func transformWithMatrix(rot mat.Matrix, t, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*p.X + rot.At(0, 1)*p.Y + rot.At(0, 2)*p.Z + t.X,
		Y: rot.At(1, 0)*p.X + rot.At(1, 1)*p.Y + rot.At(1, 2)*p.Z + t.Y,
		Z: rot.At(2, 0)*p.X + rot.At(2, 1)*p.Y + rot.At(2, 2)*p.Z + t.Z,
	}
}

// axisAngleToQuat converts an R3 axis angle to a unit quaternion.
func axisAngleToQuat(rv r3.Vector) quat.Number {
	theta := rv.Norm()
	if theta < 1e-12 {
		q := quat.Number{Real: 1, Imag: rv.X / 2, Jmag: rv.Y / 2, Kmag: rv.Z / 2}
		return quat.Scale(1/quat.Abs(q), q)
	}
	s := math.Sin(theta/2) / theta
	return quat.Number{Real: math.Cos(theta / 2), Imag: rv.X * s, Jmag: rv.Y * s, Kmag: rv.Z * s}
}

// quatToAxisAngle converts a quaternion to an R3 axis angle with angle in [0, pi].
func quatToAxisAngle(q quat.Number) r3.Vector {
	q = quat.Scale(1/quat.Abs(q), q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sinHalf := v.Norm()
	if sinHalf < 1e-12 {
		return v.Mul(2)
	}
	theta := 2 * math.Atan2(sinHalf, q.Real)
	return v.Mul(theta / sinHalf)
}

// rotationMatrixToQuat uses Shepperd's method, branching on the largest diagonal term.
func rotationMatrixToQuat(r mat.Matrix) quat.Number {
	tr := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		return quat.Number{
			Real: 0.25 * s,
			Imag: (r.At(2, 1) - r.At(1, 2)) / s,
			Jmag: (r.At(0, 2) - r.At(2, 0)) / s,
			Kmag: (r.At(1, 0) - r.At(0, 1)) / s,
		}
	case r.At(0, 0) > r.At(1, 1) && r.At(0, 0) > r.At(2, 2):
		s := math.Sqrt(1+r.At(0, 0)-r.At(1, 1)-r.At(2, 2)) * 2
		return quat.Number{
			Real: (r.At(2, 1) - r.At(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (r.At(0, 1) + r.At(1, 0)) / s,
			Kmag: (r.At(0, 2) + r.At(2, 0)) / s,
		}
	case r.At(1, 1) > r.At(2, 2):
		s := math.Sqrt(1+r.At(1, 1)-r.At(0, 0)-r.At(2, 2)) * 2
		return quat.Number{
			Real: (r.At(0, 2) - r.At(2, 0)) / s,
			Imag: (r.At(0, 1) + r.At(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (r.At(1, 2) + r.At(2, 1)) / s,
		}
	default:
		s := math.Sqrt(1+r.At(2, 2)-r.At(0, 0)-r.At(1, 1)) * 2
		return quat.Number{
			Real: (r.At(1, 0) - r.At(0, 1)) / s,
			Imag: (r.At(0, 2) + r.At(2, 0)) / s,
			Jmag: (r.At(1, 2) + r.At(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}
}

// NearestRotation projects a 3x3 matrix onto SO(3) with an SVD.
func NearestRotation(m mat.Matrix) *mat.Dense {
	dense := mat.DenseCopyOf(m)
	mats := performSVD(dense)
	if mats == nil {
		return nil
	}
	var rot mat.Dense
	rot.Mul(mats.U, mats.VT)
	if mat.Det(&rot) < 0 {
		d := eye(3)
		d.Set(2, 2, -1)
		rot.Mul(mats.U, d)
		rot.Mul(&rot, mats.VT)
	}
	return &rot
}
