package chessboard

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/rimage/transform"
)

var boardSize = image.Point{9, 6}

func testCamera(t *testing.T, distortion []float64) *transform.PinholeCameraModel {
	t.Helper()
	k := mat.NewDense(3, 3, []float64{
		800, 0, 319.5,
		0, 800, 239.5,
		0, 0, 1,
	})
	model, err := transform.NewPinholeCameraModel(k, distortion, 640, 480)
	test.That(t, err, test.ShouldBeNil)
	return model
}

func testDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return d
}

func groundTruth(t *testing.T, model *transform.PinholeCameraModel, pose transform.Pose) []r2.Point {
	t.Helper()
	truth, ok := model.ProjectPoints(pose, BoardPoints(boardSize, 1))
	test.That(t, ok, test.ShouldBeTrue)
	return truth
}

func maxError(a, b []r2.Point) float64 {
	worst := 0.
	for i := range a {
		worst = math.Max(worst, a[i].Sub(b[i]).Norm())
	}
	return worst
}

func TestDetectSyntheticBoards(t *testing.T) {
	for name, tc := range map[string]struct {
		distortion []float64
		distance   float64
		tilt       r3.Vector
	}{
		"facing":          {nil, 16, r3.Vector{}},
		"tilted":          {nil, 17, r3.Vector{X: 0.35, Y: -0.25}},
		"tilted other":    {nil, 17, r3.Vector{X: -0.3, Y: 0.3, Z: 0.15}},
		"with distortion": {[]float64{-0.15, 0.05, 0.001, -0.001, 0}, 16, r3.Vector{Y: 0.2}},
	} {
		t.Run(name, func(t *testing.T) {
			model := testCamera(t, tc.distortion)
			pose := FacingPose(boardSize, 1, tc.distance, tc.tilt)
			img := RenderBoard(model, pose, boardSize, 1, 640, 480)
			det, found := testDetector(t).Detect(img, boardSize)
			test.That(t, found, test.ShouldBeTrue)
			test.That(t, det.Size, test.ShouldResemble, boardSize)
			test.That(t, det.Corners, test.ShouldHaveLength, 54)
			test.That(t, maxError(det.Corners, groundTruth(t, model, pose)), test.ShouldBeLessThan, 0.5)
		})
	}
}

func TestDetectUpsideDownBoardKeepsColumnsToTheRight(t *testing.T) {
	model := testCamera(t, nil)
	pose := FacingPose(boardSize, 1, 16, r3.Vector{Z: math.Pi})
	img := RenderBoard(model, pose, boardSize, 1, 640, 480)
	det, found := testDetector(t).Detect(img, boardSize)
	test.That(t, found, test.ShouldBeTrue)

	truth := groundTruth(t, model, pose)
	reversed := make([]r2.Point, len(truth))
	for i := range truth {
		reversed[i] = truth[len(truth)-1-i]
	}
	test.That(t, maxError(det.Corners, reversed), test.ShouldBeLessThan, 0.5)
	test.That(t, det.Corners[1].X, test.ShouldBeGreaterThan, det.Corners[0].X)
	test.That(t, det.Corners[9].Y, test.ShouldBeGreaterThan, det.Corners[0].Y)
}

func TestDetectNotFound(t *testing.T) {
	d := testDetector(t)

	t.Run("blank", func(t *testing.T) {
		blank := image.NewGray(image.Rect(0, 0, 640, 480))
		for i := range blank.Pix {
			blank.Pix[i] = 128
		}
		_, found := d.Detect(blank, boardSize)
		test.That(t, found, test.ShouldBeFalse)
	})

	t.Run("partial", func(t *testing.T) {
		model := testCamera(t, nil)
		pose := FacingPose(boardSize, 1, 16, r3.Vector{})
		pose.Translation.X -= 5
		img := RenderBoard(model, pose, boardSize, 1, 640, 480)
		_, found := d.Detect(img, boardSize)
		test.That(t, found, test.ShouldBeFalse)
	})

	t.Run("occluded", func(t *testing.T) {
		model := testCamera(t, nil)
		img := RenderBoard(model, FacingPose(boardSize, 1, 16, r3.Vector{}), boardSize, 1, 640, 480)
		for y := 200; y < 280; y++ {
			for x := 280; x < 360; x++ {
				img.SetGray(x, y, color.Gray{Y: 128})
			}
		}
		_, found := d.Detect(img, boardSize)
		test.That(t, found, test.ShouldBeFalse)
	})

	t.Run("wrong size", func(t *testing.T) {
		model := testCamera(t, nil)
		img := RenderBoard(model, FacingPose(boardSize, 1, 16, r3.Vector{}), boardSize, 1, 640, 480)
		_, found := d.Detect(img, image.Point{7, 6})
		test.That(t, found, test.ShouldBeFalse)
		_, found = d.Detect(img, image.Point{1, 6})
		test.That(t, found, test.ShouldBeFalse)
	})
}

func TestConfigValidate(t *testing.T) {
	test.That(t, DefaultConfig().Validate(), test.ShouldBeNil)
	for name, mutate := range map[string]func(c *Config){
		"blur":    func(c *Config) { c.BlurSigma = -1 },
		"nms":     func(c *Config) { c.NMSWindow = 0 },
		"ratio":   func(c *Config) { c.ResponseRatio = 1 },
		"ring":    func(c *Config) { c.RingRadius = 1 },
		"window":  func(c *Config) { c.SubPixWindow = 0 },
		"iter":    func(c *Config) { c.SubPixMaxIter = 0 },
		"epsilon": func(c *Config) { c.SubPixEpsilon = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			test.That(t, cfg.Validate(), test.ShouldNotBeNil)
			_, err := NewDetector(cfg, logging.NewTestLogger(t))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}
