// Package main is the arcal command: calibrate a camera from checkerboard views, then draw AR overlays on
// the board.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig          = "config"
	flagDebug           = "debug"
	flagSource          = "source"
	flagPath            = "path"
	flagWidth           = "width"
	flagHeight          = "height"
	flagCols            = "cols"
	flagRows            = "rows"
	flagSquare          = "square"
	flagMinObservations = "min-observations"
	flagAsync           = "async"
	flagCalibrationFile = "calibration-file"
	flagOutputDir       = "output-dir"
	flagFPS             = "fps"
	flagNoise           = "noise"
	flagRaw             = "raw"
	flagOut             = "out"
	flagDistance        = "distance"
	flagTiltX           = "tilt-x"
	flagTiltY           = "tilt-y"
	flagTiltZ           = "tilt-z"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "arcal",
		Usage: "calibrate a camera with a checkerboard and draw augmented reality overlays on it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the calibration and overlay loop",
				Description: "keys: s accept the current board view, w write the calibration, r read it back, " +
					"e toggle the overlay shape, q quit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagSource, Usage: "frame source: webcam, dir or synthetic"},
					&cli.StringFlag{Name: flagPath, Usage: "webcam device or image directory"},
					&cli.IntFlag{Name: flagWidth, Usage: "requested frame width"},
					&cli.IntFlag{Name: flagHeight, Usage: "requested frame height"},
					&cli.IntFlag{Name: flagCols, Usage: "interior corners per board row"},
					&cli.IntFlag{Name: flagRows, Usage: "interior corners per board column"},
					&cli.Float64Flag{Name: flagSquare, Usage: "board square size"},
					&cli.IntFlag{Name: flagMinObservations, Usage: "views to accept before calibrating"},
					&cli.BoolFlag{Name: flagAsync, Usage: "calibrate on a background worker"},
					&cli.StringFlag{Name: flagCalibrationFile, Usage: "calibration file for w and r"},
					&cli.StringFlag{Name: flagOutputDir, Usage: "write annotated frames to `DIR`"},
					&cli.Float64Flag{Name: flagFPS, Value: 10, Usage: "frame rate for dir and synthetic sources, 0 for unpaced"},
					&cli.Float64Flag{Name: flagNoise, Usage: "gray-level noise sigma of the synthetic source"},
					&cli.BoolFlag{Name: flagRaw, Value: true, Usage: "read single keys without enter when stdin is a terminal"},
				},
				Action: RunAction,
			},
			{
				Name:      "render",
				Usage:     "render a synthetic board view to an image file",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagOut, Value: "board.png", Usage: "output image `FILE`"},
					&cli.IntFlag{Name: flagCols, Value: 9, Usage: "interior corners per board row"},
					&cli.IntFlag{Name: flagRows, Value: 6, Usage: "interior corners per board column"},
					&cli.Float64Flag{Name: flagDistance, Usage: "camera to board centre distance in squares, 0 to fit"},
					&cli.Float64Flag{Name: flagTiltX, Usage: "board tilt about the camera x axis in radians"},
					&cli.Float64Flag{Name: flagTiltY, Usage: "board tilt about the camera y axis in radians"},
					&cli.Float64Flag{Name: flagTiltZ, Usage: "board tilt about the camera z axis in radians"},
					&cli.Float64Flag{Name: flagNoise, Usage: "gray-level noise sigma"},
				},
				Action: RenderAction,
			},
			{
				Name:      "inspect",
				Usage:     "validate and print a calibration file",
				ArgsUsage: "<calibration file>",
				Action:    InspectAction,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
