package camera

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/arcal/logging"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

// ImageDirSource replays the images of a directory in name order.
type ImageDirSource struct {
	files  []string
	next   int
	logger logging.Logger
}

// NewImageDirSource lists the images in dir. Files with other extensions are ignored. A directory
// without images is an error.
func NewImageDirSource(dir string, logger logging.Logger) (*ImageDirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "error reading image directory")
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images found in %q", dir)
	}
	sort.Strings(files)
	logger.Debugw("image directory source", "dir", dir, "images", len(files))
	return &ImageDirSource{files: files, logger: logger}, nil
}

// Len returns the number of images.
func (s *ImageDirSource) Len() int {
	return len(s.files)
}

// Next decodes the next image. After the last one it returns ErrEndOfFrames.
func (s *ImageDirSource) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.next >= len(s.files) {
		return nil, nil, ErrEndOfFrames
	}
	path := s.files[s.next]
	s.next++
	img, err := imaging.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error decoding %q", path)
	}
	return img, noopRelease, nil
}

// Close does nothing; images are opened per frame.
func (s *ImageDirSource) Close() error {
	return nil
}
