package camera

import (
	"context"
	"image"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/rimage/detection/chessboard"
	"go.viam.com/arcal/rimage/transform"
)

// syntheticTilts are the board orientations of the default script, chosen to spread the views.
var syntheticTilts = []r3.Vector{
	{X: 0.4},
	{X: -0.4, Y: 0.1},
	{Y: 0.45, Z: 0.1},
	{X: 0.1, Y: -0.45, Z: -0.1},
	{X: 0.3, Y: 0.3, Z: 0.2},
	{X: -0.3, Y: -0.25},
	{X: 0.2, Y: -0.15, Z: 0.3},
	{},
}

// SyntheticConfig describes a scripted sequence of rendered board views.
type SyntheticConfig struct {
	Model  *transform.PinholeCameraModel
	Board  image.Point
	Square float64
	Poses  []transform.Pose
	// NoiseSigma is the standard deviation of additive gray-level noise. Zero renders clean frames.
	NoiseSigma float64
	Seed       uint64
	// Loop restarts the script instead of ending it.
	Loop bool
}

// DefaultSyntheticModel returns a 640x480 camera with mild barrel distortion.
func DefaultSyntheticModel() *transform.PinholeCameraModel {
	k := mat.NewDense(3, 3, []float64{
		810, 0, 322,
		0, 790, 236,
		0, 0, 1,
	})
	model, err := transform.NewPinholeCameraModel(k, []float64{-0.12, 0.06, 0.001, -0.0008, 0}, 640, 480)
	if err != nil {
		panic(err)
	}
	return model
}

// DefaultSyntheticPoses returns a script of board poses that keeps the whole board inside a 640x480 view
// of the default model.
func DefaultSyntheticPoses(board image.Point, square float64) []transform.Pose {
	distance := 1.8 * float64(max(board.X, board.Y)) * square
	poses := make([]transform.Pose, len(syntheticTilts))
	for i, tilt := range syntheticTilts {
		poses[i] = chessboard.FacingPose(board, square, distance+float64(i%3)*square, tilt)
	}
	return poses
}

// SyntheticSource renders a checkerboard at scripted poses.
type SyntheticSource struct {
	cfg    SyntheticConfig
	noise  distuv.Normal
	next   int
	logger logging.Logger
}

// NewSyntheticSource validates cfg and returns a source over its poses.
func NewSyntheticSource(cfg SyntheticConfig, logger logging.Logger) (*SyntheticSource, error) {
	if cfg.Model == nil {
		return nil, errors.New("synthetic source needs a camera model")
	}
	if err := cfg.Model.CheckValid(); err != nil {
		return nil, err
	}
	if cfg.Model.Width <= 0 || cfg.Model.Height <= 0 {
		return nil, errors.New("synthetic source needs a camera model with an image size")
	}
	if cfg.Board.X < 2 || cfg.Board.Y < 2 || cfg.Square <= 0 {
		return nil, errors.Errorf("invalid board %dx%d with square %v", cfg.Board.X, cfg.Board.Y, cfg.Square)
	}
	if len(cfg.Poses) == 0 {
		return nil, errors.New("synthetic source needs at least one pose")
	}
	if cfg.NoiseSigma < 0 {
		return nil, errors.Errorf("noise sigma must be non-negative, got %v", cfg.NoiseSigma)
	}
	cfg.Poses = append([]transform.Pose(nil), cfg.Poses...)
	return &SyntheticSource{
		cfg:    cfg,
		noise:  distuv.Normal{Mu: 0, Sigma: cfg.NoiseSigma, Src: rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)},
		logger: logger,
	}, nil
}

// Pose returns the true board pose of frame i of the script.
func (s *SyntheticSource) Pose(i int) transform.Pose {
	return s.cfg.Poses[i%len(s.cfg.Poses)]
}

// Len returns the number of scripted poses.
func (s *SyntheticSource) Len() int {
	return len(s.cfg.Poses)
}

// Next renders the next pose. After the last one it returns ErrEndOfFrames unless the source loops.
func (s *SyntheticSource) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.next >= len(s.cfg.Poses) {
		if !s.cfg.Loop {
			return nil, nil, ErrEndOfFrames
		}
		s.next = 0
	}
	pose := s.cfg.Poses[s.next]
	s.next++
	img := chessboard.RenderBoard(s.cfg.Model, pose, s.cfg.Board, s.cfg.Square, s.cfg.Model.Width, s.cfg.Model.Height)
	if s.cfg.NoiseSigma > 0 {
		s.addNoise(img)
	}
	return img, noopRelease, nil
}

func (s *SyntheticSource) addNoise(img *image.Gray) {
	added := make([]float64, len(img.Pix))
	for i, v := range img.Pix {
		n := s.noise.Rand()
		added[i] = n
		img.Pix[i] = uint8(math.Max(0, math.Min(255, math.Round(float64(v)+n))))
	}
	mean, std := stat.MeanStdDev(added, nil)
	s.logger.Debugw("synthetic frame noise", "frame", s.next-1, "mean", mean, "std", std)
}

// Close does nothing.
func (s *SyntheticSource) Close() error {
	return nil
}
