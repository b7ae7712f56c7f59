package camera

import (
	"context"
	"image"
	"path/filepath"
	"strings"

	"github.com/pion/mediadevices"
	driverutils "github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/arcal/logging"
)

// WebcamConfig selects a webcam and its resolution. An empty Path picks any camera and a zero size
// prefers 640x480.
type WebcamConfig struct {
	Path   string
	Width  int
	Height int
}

// WebcamSource reads frames from a local video device.
type WebcamSource struct {
	track  mediadevices.Track
	reader video.Reader
	label  string
	logger logging.Logger
}

// makeConstraints returns the mediadevices constraints for conf, restricted to deviceID when it is set.
func makeConstraints(conf WebcamConfig, deviceID string, logger logging.Logger) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(constraint *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				constraint.DeviceID = prop.StringExact(deviceID)
			}
			if conf.Width > 0 {
				constraint.Width = prop.IntExact(conf.Width)
			} else {
				constraint.Width = prop.IntRanged{Min: 0, Ideal: 640, Max: 4096}
			}
			if conf.Height > 0 {
				constraint.Height = prop.IntExact(conf.Height)
			} else {
				constraint.Height = prop.IntRanged{Min: 0, Ideal: 480, Max: 2160}
			}
			constraint.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatI420,
				frame.FormatYUY2,
				frame.FormatUYVY,
				frame.FormatRGBA,
				frame.FormatMJPEG,
				frame.FormatNV12,
			}
			logger.Debugw("webcam constraints", "device", deviceID, "width", conf.Width, "height", conf.Height)
		},
	}
}

// findDeviceID returns the driver id of the video device whose label names path.
func findDeviceID(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	for _, d := range driverutils.GetManager().Query(driverutils.FilterVideoRecorder()) {
		for _, label := range strings.Split(d.Info().Label, mediadevicescamera.LabelSeparator) {
			if label == path || filepath.Base(label) == filepath.Base(path) {
				return d.ID(), nil
			}
		}
	}
	return "", errors.Errorf("no webcam found at %q", path)
}

// NewWebcamSource opens a webcam. It fails when no device matches conf or when a requested
// resolution is not what the device delivers.
func NewWebcamSource(conf WebcamConfig, logger logging.Logger) (*WebcamSource, error) {
	mediadevicescamera.Initialize()
	var deviceID string
	if conf.Path != "" {
		var err error
		if deviceID, err = findDeviceID(conf.Path); err != nil {
			return nil, err
		}
	}
	stream, err := mediadevices.GetUserMedia(makeConstraints(conf, deviceID, logger))
	if err != nil {
		return nil, errors.Wrap(err, "found no webcams")
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, errors.New("webcam stream has no video track")
	}
	videoTrack, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		return nil, errors.Errorf("unexpected track type %T", tracks[0])
	}
	label := conf.Path
	if label == "" {
		label = "default"
	}
	src := &WebcamSource{
		track:  videoTrack,
		reader: videoTrack.NewReader(false),
		label:  label,
		logger: logger,
	}
	if conf.Width != 0 && conf.Height != 0 {
		if err := src.checkSize(conf.Width, conf.Height); err != nil {
			return nil, multierr.Combine(err, src.Close())
		}
	}
	logger.Infow("webcam opened", "label", src.label)
	return src, nil
}

// checkSize reads one frame and compares its size with the requested one.
func (w *WebcamSource) checkSize(width, height int) error {
	img, release, err := w.reader.Read()
	if release != nil {
		defer release()
	}
	if err != nil {
		return err
	}
	if img.Bounds().Dx() != width || img.Bounds().Dy() != height {
		return errors.Errorf("requested width and height (%dx%d) are not available for this webcam"+
			" (closest driver found supports resolution %dx%d)",
			width, height, img.Bounds().Dx(), img.Bounds().Dy())
	}
	return nil
}

// Next reads the next frame from the device.
func (w *WebcamSource) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	img, release, err := w.reader.Read()
	if err != nil {
		if release != nil {
			release()
		}
		return nil, nil, errors.Wrapf(err, "reading frame from webcam %q", w.label)
	}
	if release == nil {
		release = noopRelease
	}
	return img, release, nil
}

// Close stops the device.
func (w *WebcamSource) Close() error {
	return w.track.Close()
}
