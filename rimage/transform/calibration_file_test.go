package transform

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestCalibrationFileRoundTrip(t *testing.T) {
	k := mat.NewDense(3, 3, []float64{
		812.3456789012345, 0, 321.00000000000006,
		0, 809.1 / 3, 238.7777777777,
		0, 0, 1,
	})
	model, err := NewPinholeCameraModel(k, []float64{-0.1234567890123, 1e-17, math.Pi / 1000, -2.5e-4, 0.3}, 640, 480)
	test.That(t, err, test.ShouldBeNil)

	path := filepath.Join(t.TempDir(), "calibration.txt")
	test.That(t, WriteCalibrationFile(path, model), test.ShouldBeNil)

	raw, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	test.That(t, lines, test.ShouldHaveLength, 15)
	test.That(t, lines[0], test.ShouldEqual, CalibrationFileHeader)

	got, version, err := ReadCalibrationFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, version, test.ShouldEqual, CalibrationVersion1)
	test.That(t, mat.Equal(got.CameraMatrix(), k), test.ShouldBeTrue)
	test.That(t, got.Parameters(), test.ShouldResemble, model.Parameters())

	// no stray temporary files
	entries, err := os.ReadDir(filepath.Dir(path))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries, test.ShouldHaveLength, 1)
}

func TestCalibrationFileLegacy(t *testing.T) {
	legacy := "600\n0\n320\n0\n600\n240\n0\n0\n1\n0.1\n-0.05\n0\n0\n0.002\n"
	model, version, err := ReadCalibration(strings.NewReader(legacy))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, version, test.ShouldEqual, CalibrationVersionLegacy)
	test.That(t, version.String(), test.ShouldEqual, "legacy")
	test.That(t, model.Fx, test.ShouldEqual, 600)
	test.That(t, model.Ppy, test.ShouldEqual, 240)
	test.That(t, model.Distortion.RadialK3, test.ShouldEqual, 0.002)
}

func TestCalibrationFileMalformed(t *testing.T) {
	valid := []string{"600", "0", "320", "0", "600", "240", "0", "0", "1", "0", "0", "0", "0", "0"}
	withValues := func(mutate func(v []string) []string) string {
		v := append([]string{}, valid...)
		return CalibrationFileHeader + "\n" + strings.Join(mutate(v), "\n") + "\n"
	}
	for name, contents := range map[string]string{
		"empty":          "",
		"too few values": withValues(func(v []string) []string { return v[:13] }),
		"too many":       withValues(func(v []string) []string { return append(v, "1") }),
		"unparsable":     withValues(func(v []string) []string { v[4] = "six hundred"; return v }),
		"nan":            withValues(func(v []string) []string { v[10] = "NaN"; return v }),
		"inf":            withValues(func(v []string) []string { v[0] = "+Inf"; return v }),
		"zero focal":     withValues(func(v []string) []string { v[0] = "0"; return v }),
		"negative fy":    withValues(func(v []string) []string { v[4] = "-600"; return v }),
		"skew":           withValues(func(v []string) []string { v[1] = "0.5"; return v }),
		"bottom row":     withValues(func(v []string) []string { v[8] = "2"; return v }),
		"unknown header": "# arcal calibration v9\n" + strings.Join(valid, "\n"),
		"late comment":   strings.Join(valid, "\n") + "\n# trailing",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ReadCalibration(strings.NewReader(contents))
			test.That(t, errors.Is(err, ErrMalformedCalibration), test.ShouldBeTrue)
		})
	}
}

func TestWriteCalibrationRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	bad := &PinholeCameraModel{PinholeCameraIntrinsics: &PinholeCameraIntrinsics{Fx: -1, Fy: 1}}
	test.That(t, WriteCalibration(&buf, bad), test.ShouldNotBeNil)
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	path := filepath.Join(t.TempDir(), "calibration.txt")
	test.That(t, WriteCalibrationFile(path, bad), test.ShouldNotBeNil)
	_, err := os.Stat(path)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}
