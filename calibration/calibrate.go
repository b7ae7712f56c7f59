package calibration

import (
	"context"
	"image"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/rimage/transform"
)

// DefaultMinObservations is how many observations a calibration needs unless configured otherwise.
const DefaultMinObservations = 5

// intrinsicParams is the number of intrinsic unknowns: fx, fy, cx, cy, k1, k2, p1, p2, k3.
const intrinsicParams = 9

// ErrNotEnoughObservations is returned when Calibrate is called with fewer observations than required.
var ErrNotEnoughObservations = errors.New("not enough observations to calibrate")

// Options configures Calibrate.
type Options struct {
	MinObservations int
	MaxIterations   int
	Logger          logging.Logger
}

// CalibrationResult is the solved camera and the per-view poses of the board.
type CalibrationResult struct {
	Model      *transform.PinholeCameraModel
	RMS        float64
	PerViewRMS []float64
	Poses      []transform.Pose
	Iterations int
}

// Calibrate solves for the camera matrix and distortion coefficients that best explain the observations.
// The board must be planar. Once started, the solve runs to completion; ctx is only checked beforehand.
func Calibrate(
	ctx context.Context,
	observations []Observation,
	imageSize image.Point,
	opts Options,
) (*CalibrationResult, error) {
	if opts.MinObservations <= 0 {
		opts.MinObservations = DefaultMinObservations
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 200
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewBlankLogger("calibration")
	}
	if len(observations) < opts.MinObservations {
		return nil, errors.Wrapf(ErrNotEnoughObservations, "have %d, need %d", len(observations), opts.MinObservations)
	}
	if imageSize.X <= 0 || imageSize.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", imageSize)
	}
	totalPoints := 0
	for _, obs := range observations {
		if obs.Len() < minPlanarPoints {
			return nil, errors.Wrapf(ErrTooFewPoints, "observation %d has %d points", obs.Index(), obs.Len())
		}
		for _, p := range obs.boardPoints {
			if math.Abs(p.Z) > planarityTolerance {
				return nil, errors.Errorf("observation %d: board points must lie in the Z=0 plane", obs.Index())
			}
		}
		totalPoints += obs.Len()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cx, cy := float64(imageSize.X-1)/2, float64(imageSize.Y-1)/2

	homographies := make([]*mat.Dense, len(observations))
	for i, obs := range observations {
		src := make([]r2.Point, obs.Len())
		for j, p := range obs.boardPoints {
			src[j] = r2.Point{X: p.X, Y: p.Y}
		}
		h, err := transform.EstimateHomography(src, obs.corners)
		if err != nil {
			return nil, errors.Wrapf(err, "observation %d", obs.Index())
		}
		homographies[i] = h
	}
	fx, fy := initialFocalLengths(homographies, cx, cy, imageSize)
	start := mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
	logger.Infow("initial camera matrix", "camera_matrix", start.RawMatrix().Data)

	seed, err := transform.NewPinholeCameraModel(start, nil, imageSize.X, imageSize.Y)
	if err != nil {
		return nil, errors.Wrap(err, "initial camera model")
	}

	params := []float64{fx, fy, cx, cy, 0, 0, 0, 0, 0}
	for i, obs := range observations {
		pose := poseFromHomography(homographies[i], seed)
		if refined, _, err := refinePose(obs.boardPoints, obs.corners, seed, pose); err == nil {
			pose = refined
		} else {
			logger.Debugw("view pose refinement failed, keeping homography pose", "view", obs.Index(), "error", err)
		}
		params = append(params, pose.Vector()...)
	}

	f := func(dst, x []float64) {
		model := modelFromParams(x, imageSize)
		offset := 0
		for i, obs := range observations {
			pose := transform.NewPoseFromVector(x[intrinsicParams+6*i : intrinsicParams+6*i+6])
			poseResiduals(dst[offset:offset+2*obs.Len()], pose, obs.boardPoints, obs.corners, model)
			offset += 2 * obs.Len()
		}
	}
	settings := defaultLMSettings()
	settings.MaxIterations = opts.MaxIterations
	res, err := levenbergMarquardt(f, params, 2*totalPoints, settings)
	if err != nil {
		return nil, errors.Wrap(err, "calibration solve failed")
	}

	model := modelFromParams(res.X, imageSize)
	if err := model.CheckValid(); err != nil {
		return nil, errors.Wrap(err, "calibration produced an invalid camera model")
	}
	result := &CalibrationResult{
		Model:      model,
		RMS:        math.Sqrt(res.Cost / float64(totalPoints)),
		PerViewRMS: make([]float64, len(observations)),
		Poses:      make([]transform.Pose, len(observations)),
		Iterations: res.Iterations,
	}
	offset := 0
	for i, obs := range observations {
		result.Poses[i] = transform.NewPoseFromVector(res.X[intrinsicParams+6*i : intrinsicParams+6*i+6])
		sum := 0.
		for _, r := range res.Residuals[offset : offset+2*obs.Len()] {
			sum += r * r
		}
		result.PerViewRMS[i] = math.Sqrt(sum / float64(obs.Len()))
		offset += 2 * obs.Len()
	}
	logCalibration(logger, result)
	return result, nil
}

func logCalibration(logger logging.Logger, result *CalibrationResult) {
	perView := stats.Float64Data(result.PerViewRMS)
	mean, _ := perView.Mean()
	median, _ := perView.Median()
	worst, _ := perView.Max()
	logger.Infow("calibrated camera matrix",
		"camera_matrix", result.Model.CameraMatrix().RawMatrix().Data,
		"iterations", result.Iterations,
	)
	logger.Infow("reprojection error",
		"rms", result.RMS,
		"view_rms_mean", mean,
		"view_rms_median", median,
		"view_rms_max", worst,
	)
	logger.Infow("distortion coefficients", "k1_k2_p1_p2_k3", result.Model.Parameters())
}

// modelFromParams builds a camera model from the intrinsic block of x without validating it.
func modelFromParams(x []float64, imageSize image.Point) *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  imageSize.X,
			Height: imageSize.Y,
			Fx:     x[0],
			Fy:     x[1],
			Ppx:    x[2],
			Ppy:    x[3],
		},
		Distortion: &transform.BrownConrady{
			RadialK1:     x[4],
			RadialK2:     x[5],
			TangentialP1: x[6],
			TangentialP2: x[7],
			RadialK3:     x[8],
		},
	}
}

// initialFocalLengths solves the orthogonality constraints of the homographies for 1/fx^2 and 1/fy^2 with
// the principal point held at (cx, cy). If the views do not constrain it, a guess from the image size is used.
func initialFocalLengths(homographies []*mat.Dense, cx, cy float64, imageSize image.Point) (float64, float64) {
	shift := mat.NewDense(3, 3, []float64{
		1, 0, -cx,
		0, 1, -cy,
		0, 0, 1,
	})
	a := mat.NewDense(2*len(homographies), 2, nil)
	b := mat.NewVecDense(2*len(homographies), nil)
	for i, h := range homographies {
		var hs mat.Dense
		hs.Mul(shift, h)
		col := func(j int) r3.Vector {
			return r3.Vector{X: hs.At(0, j), Y: hs.At(1, j), Z: hs.At(2, j)}
		}
		h1, h2 := col(0), col(1)
		d1 := h1.Add(h2).Mul(0.5).Normalize()
		d2 := h1.Sub(h2).Mul(0.5).Normalize()
		h1, h2 = h1.Normalize(), h2.Normalize()
		a.SetRow(2*i, []float64{h1.X * h2.X, h1.Y * h2.Y})
		b.SetVec(2*i, -h1.Z*h2.Z)
		a.SetRow(2*i+1, []float64{d1.X * d2.X, d1.Y * d2.Y})
		b.SetVec(2*i+1, -d1.Z*d2.Z)
	}
	guess := float64(max(imageSize.X, imageSize.Y))
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return guess, guess
	}
	invFx2, invFy2 := math.Abs(sol.AtVec(0)), math.Abs(sol.AtVec(1))
	if invFx2 == 0 || invFy2 == 0 || math.IsNaN(invFx2) || math.IsNaN(invFy2) {
		return guess, guess
	}
	fx, fy := 1/math.Sqrt(invFx2), 1/math.Sqrt(invFy2)
	if math.IsInf(fx, 0) || math.IsInf(fy, 0) {
		return guess, guess
	}
	return fx, fy
}

// poseFromHomography recovers the board pose from a board-plane-to-pixel homography: K^-1 H = [l*r1 l*r2 l*t].
func poseFromHomography(h *mat.Dense, model *transform.PinholeCameraModel) transform.Pose {
	var kInv, normalized mat.Dense
	if err := kInv.Inverse(model.CameraMatrix()); err != nil {
		return transform.Pose{Translation: r3.Vector{Z: 1}}
	}
	normalized.Mul(&kInv, h)
	rot, t, err := decomposeHomography(&normalized)
	if err != nil {
		return transform.Pose{Translation: r3.Vector{Z: 1}}
	}
	return transform.NewPoseFromRotationMatrix(rot, t)
}
