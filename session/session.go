// Package session runs the calibrate-then-overlay workflow over a stream of frames.
package session

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/arcal/calibration"
	"go.viam.com/arcal/config"
	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/overlay"
	"go.viam.com/arcal/rimage"
	"go.viam.com/arcal/rimage/detection/chessboard"
	"go.viam.com/arcal/rimage/transform"
)

// A Session owns the observations, the camera model and the overlay settings of one calibration run.
// Frames and commands must come from a single goroutine; only the optional calibration worker runs
// elsewhere and it hands its result back through a channel.
type Session struct {
	id              uuid.UUID
	board           image.Point
	boardPoints     []r3.Vector
	minObservations int
	async           bool
	calibrationFile string

	detector *chessboard.Detector
	renderer *overlay.Renderer
	store    *calibration.ObservationStore
	logger   logging.Logger

	mu        sync.Mutex
	state     State
	model     *transform.PinholeCameraModel
	lastRMS   float64
	shape     overlay.Shape
	frameSize image.Point
	current   *chessboard.Detection
	lastPose  *transform.Pose
	quit      bool

	workerCtx    context.Context
	cancelWorker context.CancelFunc
	workers      sync.WaitGroup
	results      chan calibrationOutcome
}

// FrameResult is the outcome of processing one frame.
type FrameResult struct {
	Image     image.Image
	Detection chessboard.Detection
	Found     bool
	// Pose is set when the session is calibrated and the board pose was solved.
	Pose *transform.Pose
}

// New returns a session in StateUncalibrated configured by cfg.
func New(cfg *config.Config, logger logging.Logger) (*Session, error) {
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	id := uuid.New()
	logger = logger.WithFields("session_id", id.String())
	detector, err := chessboard.NewDetector(cfg.Detection, logger.Sublogger("detector"))
	if err != nil {
		return nil, err
	}
	board := image.Point{cfg.Board.Cols, cfg.Board.Rows}
	workerCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:              id,
		board:           board,
		boardPoints:     chessboard.BoardPoints(board, cfg.Board.Square),
		minObservations: cfg.MinObservations,
		async:           cfg.AsyncCalibration,
		calibrationFile: cfg.CalibrationFile,
		detector:        detector,
		renderer:        overlay.NewRenderer(board, cfg.Board.Square),
		store:           calibration.NewObservationStore(),
		logger:          logger,
		workerCtx:       workerCtx,
		cancelWorker:    cancel,
		results:         make(chan calibrationOutcome, 1),
	}
	logger.Infow("session started",
		"board", fmt.Sprintf("%dx%d", board.X, board.Y),
		"min_observations", s.minObservations,
		"async_calibration", s.async)
	return s, nil
}

// ID returns the id of this session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Model returns the camera model, or nil before calibration.
func (s *Session) Model() *transform.PinholeCameraModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// LastRMS returns the reprojection RMS of the last solve in pixels. It is zero for a loaded model.
func (s *Session) LastRMS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRMS
}

// Shape returns the overlay shape.
func (s *Session) Shape() overlay.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shape
}

// LastPose returns the board pose of the most recent frame, if one was solved.
func (s *Session) LastPose() (transform.Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPose == nil {
		return transform.Pose{}, false
	}
	return *s.lastPose, true
}

// ObservationCount returns how many observations have been accepted.
func (s *Session) ObservationCount() int {
	return s.store.Count()
}

// Done reports whether a quit command was handled.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quit
}

// setState moves to next when the transition table allows it. The caller must hold mu.
func (s *Session) setState(next State) error {
	if err := checkTransition(s.state, next); err != nil {
		return err
	}
	if s.state != next {
		s.logger.Infow("state changed", "from", s.state.String(), "to", next.String())
	}
	s.state = next
	return nil
}

// ProcessFrame detects the board in img and returns the annotated frame. Once calibrated, a detected
// board gets the overlay; before that the detected grid is highlighted.
func (s *Session) ProcessFrame(ctx context.Context, img image.Image) (FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return FrameResult{}, err
	}
	s.pollWorker()

	gray := rimage.MakeGray(img)
	det, found := s.detector.Detect(gray, s.board)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameSize = gray.Bounds().Size()
	s.lastPose = nil
	if found {
		s.current = &det
	} else {
		s.current = nil
	}

	result := FrameResult{Detection: det, Found: found}
	dc := rimage.NewContextForImage(img)
	switch {
	case found && s.state == StateCalibrated:
		model := s.model.WithSize(s.frameSize.X, s.frameSize.Y)
		pose, rms, err := calibration.SolvePoseWithError(s.boardPoints, det.Corners, model)
		if err != nil {
			s.logger.Debugw("no board pose for frame", "error", err)
			break
		}
		s.lastPose = &pose
		result.Pose = &pose
		if !s.renderer.Draw(dc, model, pose, s.shape) {
			s.logger.Debugw("overlay not drawn, geometry behind camera", "pose_rms", rms)
		}
	case found:
		chessboard.DrawCorners(dc, s.board, det.Corners, true)
	}
	overlay.DrawStatus(dc, s.statusLines(found)...)
	result.Image = dc.Image()
	return result, nil
}

func (s *Session) statusLines(found bool) []string {
	detection := "board: not found"
	if found {
		detection = "board: found"
	}
	lines := []string{
		"state: " + s.state.String(),
		fmt.Sprintf("observations: %d/%d", s.store.Count(), s.minObservations),
		detection,
	}
	if s.state == StateCalibrated {
		lines = append(lines, fmt.Sprintf("rms: %.3f px", s.lastRMS), "shape: "+s.shape.String())
	}
	return lines
}

// Handle applies one command. Rejected commands return an error and leave the session unchanged.
func (s *Session) Handle(ctx context.Context, cmd Command) error {
	s.logger.Debugw("command", "command", cmd.String())
	switch cmd {
	case CommandAccept:
		return s.accept(ctx)
	case CommandSave:
		return s.save()
	case CommandLoad:
		return s.load()
	case CommandToggleShape:
		s.mu.Lock()
		s.shape = s.shape.Next()
		s.logger.Infow("overlay shape", "shape", s.shape.String())
		s.mu.Unlock()
		return nil
	case CommandQuit:
		s.mu.Lock()
		s.quit = true
		s.mu.Unlock()
		return nil
	default:
		return errors.Errorf("unknown command %d", cmd)
	}
}

func (s *Session) accept(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateCalibrated || s.state == StateCalibrating {
		state := s.state
		s.mu.Unlock()
		return errors.Wrapf(ErrInvalidTransition, "cannot accept observations while %s", state)
	}
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoDetection
	}
	obs, err := s.store.Accept(s.current.Corners, s.boardPoints)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state == StateUncalibrated {
		if err := s.setState(StateAccumulating); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	count := s.store.Count()
	frameSize := s.frameSize
	s.logger.Infow("observation accepted", "index", obs.Index(), "count", count, "needed", s.minObservations)
	if count < s.minObservations {
		s.mu.Unlock()
		return nil
	}
	if s.async {
		err := s.startWorker(s.store.All(), frameSize)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	res, err := calibration.Calibrate(ctx, s.store.All(), frameSize, s.calibrationOptions())
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warnw("calibration failed, keep accepting views", "error", err)
		return errors.Wrap(err, "calibration failed")
	}
	return s.applyCalibration(res)
}

func (s *Session) calibrationOptions() calibration.Options {
	return calibration.Options{
		MinObservations: s.minObservations,
		Logger:          s.logger.Sublogger("calibration"),
	}
}

// applyCalibration installs a solved model. The caller must hold mu.
func (s *Session) applyCalibration(res *calibration.CalibrationResult) error {
	if err := s.setState(StateCalibrated); err != nil {
		return err
	}
	s.model = res.Model
	s.lastRMS = res.RMS
	return nil
}

func (s *Session) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCalibrated {
		return errors.Wrapf(ErrNotCalibrated, "state is %s", s.state)
	}
	if err := transform.WriteCalibrationFile(s.calibrationFile, s.model); err != nil {
		return err
	}
	s.logger.Infow("calibration saved", "path", s.calibrationFile)
	return nil
}

func (s *Session) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkTransition(s.state, StateCalibrated); err != nil {
		return err
	}
	model, version, err := transform.ReadCalibrationFile(s.calibrationFile)
	if err != nil {
		return err
	}
	if err := s.setState(StateCalibrated); err != nil {
		return err
	}
	s.model = model
	s.lastRMS = 0
	s.logger.Infow("calibration loaded",
		"path", s.calibrationFile,
		"version", version.String(),
		"camera_matrix", model.CameraMatrix().RawMatrix().Data,
		"distortion", model.Parameters())
	return nil
}

// Close waits for an in-flight calibration worker. Its result is discarded.
func (s *Session) Close() error {
	s.cancelWorker()
	s.workers.Wait()
	s.logger.Infow("session closed", "state", s.State().String(), "observations", s.store.Count())
	return nil
}
