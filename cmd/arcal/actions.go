package main

import (
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/camera"
	"go.viam.com/arcal/config"
	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/rimage/detection/chessboard"
	"go.viam.com/arcal/rimage/transform"
	"go.viam.com/arcal/session"
)

// loadConfig reads the config file, if any, and applies the flags that were set on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagSource) {
		cfg.Camera.Source = c.String(flagSource)
	}
	if c.IsSet(flagPath) {
		cfg.Camera.Path = c.String(flagPath)
	}
	if c.IsSet(flagWidth) {
		cfg.Camera.Width = c.Int(flagWidth)
	}
	if c.IsSet(flagHeight) {
		cfg.Camera.Height = c.Int(flagHeight)
	}
	if c.IsSet(flagCols) {
		cfg.Board.Cols = c.Int(flagCols)
	}
	if c.IsSet(flagRows) {
		cfg.Board.Rows = c.Int(flagRows)
	}
	if c.IsSet(flagSquare) {
		cfg.Board.Square = c.Float64(flagSquare)
	}
	if c.IsSet(flagMinObservations) {
		cfg.MinObservations = c.Int(flagMinObservations)
	}
	if c.IsSet(flagAsync) {
		cfg.AsyncCalibration = c.Bool(flagAsync)
	}
	if c.IsSet(flagCalibrationFile) {
		cfg.CalibrationFile = c.String(flagCalibrationFile)
	}
	if c.IsSet(flagOutputDir) {
		cfg.OutputDir = c.String(flagOutputDir)
	}
	if c.Bool(flagDebug) {
		cfg.Debug = true
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(debug bool) logging.Logger {
	if debug {
		return logging.NewDebugLogger("arcal")
	}
	return logging.NewLogger("arcal")
}

// openSource returns the configured frame source and the pacing interval for it.
func openSource(cfg *config.Config, fps, noise float64, logger logging.Logger) (camera.FrameSource, time.Duration, error) {
	var interval time.Duration
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	board := image.Point{cfg.Board.Cols, cfg.Board.Rows}
	switch cfg.Camera.Source {
	case config.SourceWebcam:
		src, err := camera.NewWebcamSource(camera.WebcamConfig{
			Path:   cfg.Camera.Path,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
		}, logger.Sublogger("webcam"))
		if err != nil {
			return nil, 0, err
		}
		return src, 0, nil
	case config.SourceDir:
		src, err := camera.NewImageDirSource(cfg.Camera.Path, logger.Sublogger("images"))
		if err != nil {
			return nil, 0, err
		}
		return src, interval, nil
	case config.SourceSynthetic:
		src, err := camera.NewSyntheticSource(camera.SyntheticConfig{
			Model:      camera.DefaultSyntheticModel(),
			Board:      board,
			Square:     cfg.Board.Square,
			Poses:      camera.DefaultSyntheticPoses(board, cfg.Board.Square),
			NoiseSigma: noise,
			Seed:       1,
			Loop:       true,
		}, logger.Sublogger("synthetic"))
		if err != nil {
			return nil, 0, err
		}
		return src, interval, nil
	default:
		return nil, 0, errors.Errorf("unknown source %q", cfg.Camera.Source)
	}
}

func openSink(cfg *config.Config, logger logging.Logger) (camera.FrameSink, error) {
	if cfg.OutputDir == "" {
		return camera.NopSink{}, nil
	}
	sink, err := camera.NewDirSink(cfg.OutputDir, logger.Sublogger("sink"))
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// RunAction runs the interactive loop until quit, interrupt or a frame error.
func RunAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Debug)
	defer utils.UncheckedErrorFunc(logger.Sync)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, interval, err := openSource(cfg, c.Float64(flagFPS), c.Float64(flagNoise), logger)
	if err != nil {
		return errors.Wrap(err, "camera unavailable")
	}
	defer utils.UncheckedErrorFunc(src.Close)

	sink, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(sink.Close)

	sess, err := session.New(cfg, logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(sess.Close)

	keys, restore, err := startKeys(c.App.Reader, c.Bool(flagRaw), logger)
	if err != nil {
		return err
	}
	defer restore()

	err = sess.Run(ctx, src, sink, session.RunOptions{Commands: keys, FrameInterval: interval})
	if errors.Is(err, camera.ErrEndOfFrames) {
		logger.Info("all frames processed")
		err = nil
	}
	logger.Infow("session finished", "state", sess.State().String(), "observations", sess.ObservationCount())
	return err
}

// RenderAction writes one synthetic view of a board seen by the default synthetic camera.
func RenderAction(c *cli.Context) error {
	board := image.Point{c.Int(flagCols), c.Int(flagRows)}
	if board.X < 2 || board.Y < 2 {
		return errors.Errorf("board must have at least 2x2 interior corners, got %dx%d", board.X, board.Y)
	}
	logger := newLogger(c.Bool(flagDebug))
	model := camera.DefaultSyntheticModel()
	distance := c.Float64(flagDistance)
	if distance <= 0 {
		distance = 1.8 * float64(max(board.X, board.Y))
	}
	pose := chessboard.FacingPose(board, 1, distance, r3.Vector{
		X: c.Float64(flagTiltX),
		Y: c.Float64(flagTiltY),
		Z: c.Float64(flagTiltZ),
	})
	src, err := camera.NewSyntheticSource(camera.SyntheticConfig{
		Model:      model,
		Board:      board,
		Square:     1,
		Poses:      []transform.Pose{pose},
		NoiseSigma: c.Float64(flagNoise),
		Seed:       1,
	}, logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(src.Close)
	img, release, err := src.Next(c.Context)
	if err != nil {
		return err
	}
	defer release()

	out := c.String(flagOut)
	if err := imaging.Save(img, out); err != nil {
		return errors.Wrapf(err, "error writing %q", out)
	}
	origin, _ := model.Project(pose.Transform(r3.Vector{}))
	fmt.Fprintf(c.App.Writer, "wrote %s (%dx%d), board origin at (%.2f, %.2f)\n",
		out, img.Bounds().Dx(), img.Bounds().Dy(), origin.X, origin.Y)
	return nil
}

// InspectAction validates a calibration file and prints its contents.
func InspectAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("inspect needs exactly one calibration file")
	}
	model, version, err := transform.ReadCalibrationFile(c.Args().First())
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "format: %s\n", version)
	fmt.Fprintf(w, "camera matrix:\n%v\n", mat.Formatted(model.CameraMatrix(), mat.Squeeze()))
	fmt.Fprintf(w, "distortion k1 k2 p1 p2 k3: %v\n", model.Parameters())
	return nil
}
