package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/arcal/calibration"
	"go.viam.com/arcal/rimage/detection/chessboard"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate("config"), test.ShouldBeNil)
	test.That(t, cfg.Board, test.ShouldResemble, Board{Cols: 9, Rows: 6, Square: 1})
	test.That(t, cfg.MinObservations, test.ShouldEqual, calibration.DefaultMinObservations)
	test.That(t, cfg.CalibrationFile, test.ShouldEqual, DefaultCalibrationFile)
	test.That(t, cfg.Camera.Source, test.ShouldEqual, SourceWebcam)
	test.That(t, cfg.Detection, test.ShouldResemble, chessboard.DefaultConfig())
	test.That(t, cfg.AsyncCalibration, test.ShouldBeFalse)
}

func TestFromReader(t *testing.T) {
	t.Run("partial input keeps defaults", func(t *testing.T) {
		cfg, err := FromReader(strings.NewReader(`{
			"board": {"cols": 7, "rows": 5, "square": 0.025},
			"async_calibration": true,
			"camera": {"source": "dir", "path": "frames"},
			"detection": {"blur_sigma": 1.5}
		}`))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Board, test.ShouldResemble, Board{Cols: 7, Rows: 5, Square: 0.025})
		test.That(t, cfg.AsyncCalibration, test.ShouldBeTrue)
		test.That(t, cfg.Camera, test.ShouldResemble, Camera{Source: SourceDir, Path: "frames"})
		test.That(t, cfg.Detection.BlurSigma, test.ShouldEqual, 1.5)
		test.That(t, cfg.Detection.SubPixMaxIter, test.ShouldEqual, chessboard.DefaultConfig().SubPixMaxIter)
		test.That(t, cfg.MinObservations, test.ShouldEqual, calibration.DefaultMinObservations)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := FromReader(strings.NewReader(`{"bored": {}}`))
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "error parsing config")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := FromReader(strings.NewReader(`board: 9x6`))
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("invalid values", func(t *testing.T) {
		for _, tc := range []struct {
			input    string
			contains string
		}{
			{`{"board": {"cols": 1, "rows": 6, "square": 1}}`, "cols"},
			{`{"board": {"cols": 9, "rows": 6, "square": 0}}`, "square"},
			{`{"min_observations": 0}`, "min_observations"},
			{`{"calibration_file": ""}`, "calibration_file"},
			{`{"camera": {"source": "dir"}}`, "path"},
			{`{"camera": {"source": "tape"}}`, "tape"},
			{`{"camera": {"source": "webcam", "width": -1}}`, "frame size"},
			{`{"detection": {"nms_window": 0}}`, "nms_window"},
		} {
			_, err := FromReader(strings.NewReader(tc.input))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.contains)
		}
	})
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcal.json")
	test.That(t, os.WriteFile(path, []byte(`{"camera": {"source": "synthetic"}, "debug": true}`), 0o600), test.ShouldBeNil)
	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Source, test.ShouldEqual, SourceSynthetic)
	test.That(t, cfg.Debug, test.ShouldBeTrue)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening config file")
}
