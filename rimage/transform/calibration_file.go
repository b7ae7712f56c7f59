package transform

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// CalibrationFileHeader tags version 1 of the calibration file layout.
const CalibrationFileHeader = "# arcal calibration v1"

// calibrationValueCount is 9 camera-matrix entries followed by 5 distortion coefficients.
const calibrationValueCount = 14

// ErrMalformedCalibration is returned when a calibration file cannot be turned into a valid camera model.
var ErrMalformedCalibration = errors.New("malformed calibration file")

func malformed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedCalibration, format, args...)
}

// CalibrationVersion identifies the layout a calibration file was read from.
type CalibrationVersion int

const (
	// CalibrationVersionLegacy is the headerless 14-value layout.
	CalibrationVersionLegacy CalibrationVersion = iota
	// CalibrationVersion1 is the layout with CalibrationFileHeader on the first line.
	CalibrationVersion1
)

func (v CalibrationVersion) String() string {
	if v == CalibrationVersionLegacy {
		return "legacy"
	}
	return fmt.Sprintf("v%d", int(v))
}

// WriteCalibration writes the model as a header line followed by one value per line: the row-major
// camera matrix, then k1, k2, p1, p2, k3. Values round-trip exactly.
func WriteCalibration(w io.Writer, model *PinholeCameraModel) error {
	if err := model.CheckValid(); err != nil {
		return errors.Wrap(err, "refusing to write invalid camera model")
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(CalibrationFileHeader + "\n"); err != nil {
		return err
	}
	k := model.CameraMatrix()
	values := append(k.RawMatrix().Data[:9:9], model.Parameters()...)
	for _, v := range values {
		if _, err := bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteCalibrationFile writes the model to path, replacing any existing file only once the
// new contents are fully written.
func WriteCalibrationFile(path string, model *PinholeCameraModel) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "error creating calibration file")
	}
	defer func() {
		if err != nil {
			utils.UncheckedError(os.Remove(tmp.Name()))
		}
	}()
	if err := WriteCalibration(tmp, model); err != nil {
		return multierr.Combine(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "error closing calibration file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "error replacing calibration file")
}

// ReadCalibration parses a calibration file in either the versioned or the legacy layout and
// validates the result.
func ReadCalibration(r io.Reader) (*PinholeCameraModel, CalibrationVersion, error) {
	scanner := bufio.NewScanner(r)
	version := CalibrationVersionLegacy
	values := make([]float64, 0, calibrationValueCount)
	sawContent := false
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if sawContent {
				return nil, version, malformed("unexpected comment on line %d", lineNum)
			}
			if line != CalibrationFileHeader {
				return nil, version, malformed("unknown version header %q", line)
			}
			version = CalibrationVersion1
			sawContent = true
			continue
		}
		sawContent = true
		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, version, malformed("line %d: cannot parse %q", lineNum, field)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, version, malformed("line %d: non-finite value %q", lineNum, field)
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, version, errors.Wrap(err, "error reading calibration file")
	}
	if len(values) != calibrationValueCount {
		return nil, version, malformed("expected %d values, got %d", calibrationValueCount, len(values))
	}
	k := values[:9]
	if k[1] != 0 || k[3] != 0 {
		return nil, version, malformed("camera matrix has skew or shear (%v, %v)", k[1], k[3])
	}
	if k[6] != 0 || k[7] != 0 || k[8] != 1 {
		return nil, version, malformed("camera matrix bottom row must be (0, 0, 1), got (%v, %v, %v)", k[6], k[7], k[8])
	}
	if k[0] <= 0 || k[4] <= 0 {
		return nil, version, malformed("focal lengths must be positive, got fx=%v fy=%v", k[0], k[4])
	}
	dist, err := NewBrownConrady(values[9:])
	if err != nil {
		return nil, version, errors.Wrap(ErrMalformedCalibration, err.Error())
	}
	model := &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{Fx: k[0], Fy: k[4], Ppx: k[2], Ppy: k[5]},
		Distortion:              dist,
	}
	if err := model.CheckValid(); err != nil {
		return nil, version, errors.Wrap(ErrMalformedCalibration, err.Error())
	}
	return model, version, nil
}

// ReadCalibrationFile opens path and reads it with ReadCalibration.
func ReadCalibrationFile(path string) (*PinholeCameraModel, CalibrationVersion, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, CalibrationVersionLegacy, errors.Wrap(err, "error opening calibration file")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadCalibration(f)
}
