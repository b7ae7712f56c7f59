package session

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/arcal/camera"
)

// fpsWindow is how often the measured frame rate is logged.
const fpsWindow = 5 * time.Second

// RunOptions configures Run.
type RunOptions struct {
	// Commands are polled without blocking after every frame. A nil channel disables commands.
	Commands <-chan Command
	// Clock paces the loop and measures the frame rate. It defaults to the wall clock.
	Clock clock.Clock
	// FrameInterval is the minimum time between frames. Zero runs as fast as frames arrive.
	FrameInterval time.Duration
}

// Run reads frames from src until a quit command, context cancellation or a frame error. Every annotated
// frame goes to sink. Rejected commands are logged and the loop continues. The caller owns src and sink.
func (s *Session) Run(ctx context.Context, src camera.FrameSource, sink camera.FrameSink, opts RunOptions) error {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	windowStart := clk.Now()
	windowFrames := 0
	for {
		if ctx.Err() != nil {
			s.logger.Infow("frame loop cancelled")
			return nil
		}
		frameStart := clk.Now()
		img, release, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Infow("frame loop cancelled")
				return nil
			}
			return errors.Wrap(err, "frame acquisition failed")
		}
		res, err := s.ProcessFrame(ctx, img)
		release()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := sink.Write(ctx, res.Image); err != nil {
			return errors.Wrap(err, "error writing annotated frame")
		}

		s.drainCommands(ctx, opts.Commands)
		if s.Done() {
			s.logger.Infow("quit requested")
			return nil
		}

		windowFrames++
		if elapsed := clk.Since(windowStart); elapsed >= fpsWindow {
			s.logger.Debugw("frame rate", "fps", float64(windowFrames)/elapsed.Seconds())
			windowStart, windowFrames = clk.Now(), 0
		}
		if opts.FrameInterval > 0 {
			if wait := opts.FrameInterval - clk.Since(frameStart); wait > 0 {
				clk.Sleep(wait)
			}
		}
	}
}

func (s *Session) drainCommands(ctx context.Context, commands <-chan Command) {
	for {
		select {
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := s.Handle(ctx, cmd); err != nil {
				s.logger.Warnw("command rejected", "command", cmd.String(), "error", err)
			}
		default:
			return
		}
	}
}
