package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/arcal/logging"
)

// DirSink writes frames as numbered PNG files.
type DirSink struct {
	dir    string
	count  int
	logger logging.Logger
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string, logger logging.Logger) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "error creating output directory")
	}
	return &DirSink{dir: dir, logger: logger}, nil
}

// Write saves img as the next frame file.
func (s *DirSink) Write(ctx context.Context, img image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.png", s.count))
	if err := imaging.Save(img, path); err != nil {
		return errors.Wrapf(err, "error writing %q", path)
	}
	s.count++
	return nil
}

// Count returns how many frames were written.
func (s *DirSink) Count() int {
	return s.count
}

// Close logs how many frames were written.
func (s *DirSink) Close() error {
	s.logger.Infow("annotated frames written", "dir", s.dir, "count", s.count)
	return nil
}

// NopSink discards frames.
type NopSink struct{}

// Write does nothing.
func (NopSink) Write(context.Context, image.Image) error { return nil }

// Close does nothing.
func (NopSink) Close() error { return nil }
