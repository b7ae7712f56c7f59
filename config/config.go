// Package config defines the JSON configuration of an arcal session.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/arcal/calibration"
	"go.viam.com/arcal/rimage/detection/chessboard"
)

// Camera source kinds.
const (
	SourceWebcam    = "webcam"
	SourceDir       = "dir"
	SourceSynthetic = "synthetic"
)

// DefaultCalibrationFile is where the calibration is written and read when nothing else is configured.
const DefaultCalibrationFile = "calibration.txt"

// Board describes the calibration target by its interior corner counts.
type Board struct {
	Cols   int     `json:"cols"`
	Rows   int     `json:"rows"`
	Square float64 `json:"square"`
}

// Validate ensures all parts of the board config are valid.
func (b *Board) Validate(path string) error {
	if b.Cols < 2 {
		return utils.NewConfigValidationError(path, errors.Errorf("cols must be at least 2, got %d", b.Cols))
	}
	if b.Rows < 2 {
		return utils.NewConfigValidationError(path, errors.Errorf("rows must be at least 2, got %d", b.Rows))
	}
	if b.Square <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("square must be positive, got %v", b.Square))
	}
	return nil
}

// Camera selects where frames come from.
type Camera struct {
	Source string `json:"source"`
	Path   string `json:"path,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Validate ensures all parts of the camera config are valid.
func (c *Camera) Validate(path string) error {
	switch c.Source {
	case SourceWebcam, SourceSynthetic:
	case SourceDir:
		if c.Path == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "path")
		}
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "source")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown source %q", c.Source))
	}
	if c.Width < 0 || c.Height < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid frame size %dx%d", c.Width, c.Height))
	}
	return nil
}

// Config is the full session configuration.
type Config struct {
	Board            Board             `json:"board"`
	MinObservations  int               `json:"min_observations"`
	AsyncCalibration bool              `json:"async_calibration"`
	CalibrationFile  string            `json:"calibration_file"`
	Camera           Camera            `json:"camera"`
	Detection        chessboard.Config `json:"detection"`
	OutputDir        string            `json:"output_dir,omitempty"`
	Debug            bool              `json:"debug"`
}

// Default returns the configuration for a 9x6 board seen through the default webcam.
func Default() *Config {
	return &Config{
		Board:           Board{Cols: 9, Rows: 6, Square: 1},
		MinObservations: calibration.DefaultMinObservations,
		CalibrationFile: DefaultCalibrationFile,
		Camera:          Camera{Source: SourceWebcam},
		Detection:       chessboard.DefaultConfig(),
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if err := c.Board.Validate(fmt.Sprintf("%s.%s", path, "board")); err != nil {
		return err
	}
	if c.MinObservations < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("min_observations must be at least 1, got %d", c.MinObservations))
	}
	if c.CalibrationFile == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "calibration_file")
	}
	if err := c.Camera.Validate(fmt.Sprintf("%s.%s", path, "camera")); err != nil {
		return err
	}
	if err := c.Detection.Validate(); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "detection"), err)
	}
	return nil
}

// FromReader reads a config from the given reader. Fields missing from the input keep their
// default values.
func FromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config")
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads a config from the given file.
func Read(path string) (*Config, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening config file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return FromReader(f)
}
