package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/rimage/transform"
	"go.viam.com/arcal/session"
)

func testApp(input string) (*bytes.Buffer, func(args ...string) error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = strings.NewReader(input)
	return &out, func(args ...string) error {
		return app.Run(append([]string{"arcal"}, args...))
	}
}

func TestKeyBindings(t *testing.T) {
	commands := make(chan session.Command, 8)
	readKeys(strings.NewReader("sx wr\neq"), commands, logging.NewTestLogger(t))
	var got []session.Command
	for cmd := range commands {
		got = append(got, cmd)
	}
	test.That(t, got, test.ShouldResemble, []session.Command{
		session.CommandAccept,
		session.CommandSave,
		session.CommandLoad,
		session.CommandToggleShape,
		session.CommandQuit,
	})
}

func TestStartKeysWithoutTerminal(t *testing.T) {
	commands, restore, err := startKeys(strings.NewReader("q"), true, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer restore()
	cmd, ok := <-commands
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd, test.ShouldEqual, session.CommandQuit)
	_, ok = <-commands
	test.That(t, ok, test.ShouldBeFalse)
}

func TestInspect(t *testing.T) {
	k := mat.NewDense(3, 3, []float64{800, 0, 320, 0, 790, 240, 0, 0, 1})
	model, err := transform.NewPinholeCameraModel(k, []float64{-0.1, 0.02, 0, 0, 0}, 0, 0)
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(t.TempDir(), "calibration.txt")
	test.That(t, transform.WriteCalibrationFile(path, model), test.ShouldBeNil)

	out, run := testApp("")
	test.That(t, run("inspect", path), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "format: v1")
	test.That(t, out.String(), test.ShouldContainSubstring, "800")
	test.That(t, out.String(), test.ShouldContainSubstring, "-0.1")

	_, run = testApp("")
	test.That(t, run("inspect"), test.ShouldNotBeNil)

	bad := filepath.Join(t.TempDir(), "bad.txt")
	test.That(t, os.WriteFile(bad, []byte("# arcal calibration v9\n"), 0o600), test.ShouldBeNil)
	_, run = testApp("")
	err = run("inspect", bad)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "malformed")
}

func TestRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.png")
	out, run := testApp("")
	test.That(t, run("render", "--out", path, "--tilt-x", "0.3"), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "wrote "+path)
	img, err := imaging.Open(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 640)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 480)

	_, run = testApp("")
	test.That(t, run("render", "--out", path, "--cols", "1"), test.ShouldNotBeNil)
}

func TestRunSynthetic(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "frames")
	_, run := testApp("q")
	err := run("run",
		"--source", "synthetic",
		"--fps", "0",
		"--output-dir", outDir,
		"--calibration-file", filepath.Join(dir, "calibration.txt"),
	)
	test.That(t, err, test.ShouldBeNil)
	written, err := os.ReadDir(outDir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(written), test.ShouldBeGreaterThanOrEqualTo, 1)
}

func TestRunFromImageDirectory(t *testing.T) {
	dir := t.TempDir()
	frames := filepath.Join(dir, "in")
	test.That(t, os.Mkdir(frames, 0o750), test.ShouldBeNil)
	_, run := testApp("")
	test.That(t, run("render", "--out", filepath.Join(frames, "a.png")), test.ShouldBeNil)

	cfgPath := filepath.Join(dir, "arcal.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{"camera": {"source": "dir", "path": "`+frames+`"}}`), 0o600),
		test.ShouldBeNil)
	outDir := filepath.Join(dir, "out")
	_, run = testApp("")
	// the directory runs out of frames, which ends the loop cleanly
	test.That(t, run("--config", cfgPath, "run", "--fps", "0", "--output-dir", outDir), test.ShouldBeNil)
	written, err := os.ReadDir(outDir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, written, test.ShouldHaveLength, 1)
}

func TestRunErrors(t *testing.T) {
	_, run := testApp("")
	err := run("run", "--source", "dir", "--path", filepath.Join(t.TempDir(), "missing"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera unavailable")

	_, run = testApp("")
	err = run("run", "--source", "tape")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "tape")

	_, run = testApp("")
	err = run("--config", filepath.Join(t.TempDir(), "missing.json"), "run")
	test.That(t, err, test.ShouldNotBeNil)
}
