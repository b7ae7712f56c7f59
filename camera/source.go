// Package camera provides the frame sources a session reads from and the sinks annotated frames go to.
package camera

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// ErrEndOfFrames is returned by finite sources once every frame has been handed out.
var ErrEndOfFrames = errors.New("no more frames")

// A FrameSource produces camera frames. The returned release func must be called once the frame is no
// longer used. Any error from Next ends the session.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, func(), error)
	Close() error
}

// A FrameSink receives annotated frames.
type FrameSink interface {
	Write(ctx context.Context, img image.Image) error
	Close() error
}

func noopRelease() {}
