package capture

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// CameraOptions configures a Camera source.
type CameraOptions struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// Camera is a Source backed by a local video device through GoCV.
type Camera struct {
	opts  CameraOptions
	probe func(deviceID int) error
}

// NewCamera creates a camera source. Zero-valued options fall back to the defaults.
func NewCamera(opts CameraOptions) *Camera {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	return &Camera{
		opts:  opts,
		probe: probeDevice,
	}
}

// Options returns the effective camera options.
func (c *Camera) Options() CameraOptions {
	return c.opts
}

// Acquire opens the video device. A permission failure is reported as
// ErrPermissionDenied, every other failure as ErrDeviceUnavailable.
func (c *Camera) Acquire() (Stream, error) {
	if err := c.probe(c.opts.DeviceID); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(c.opts.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", ErrDeviceUnavailable, c.opts.DeviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, c.opts.DeviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.opts.FPS))

	return &deviceStream{
		id:      fmt.Sprintf("camera-%d-%s", c.opts.DeviceID, uuid.NewString()[:8]),
		capture: vc,
	}, nil
}

// Release stops the stream's tracks. Nil and already-released streams are ignored.
func (c *Camera) Release(s Stream) error {
	if s == nil {
		return nil
	}
	return s.Stop()
}

// deviceStream wraps a gocv.VideoCapture. VideoCapture is not safe for
// concurrent use, so reads and Stop are serialized.
type deviceStream struct {
	id      string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	stopped bool
}

func (s *deviceStream) ID() string {
	return s.id
}

// Read grabs the current frame into dst.
func (s *deviceStream) Read(dst *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStreamReleased
	}

	if ok := s.capture.Read(dst); !ok {
		return fmt.Errorf("read frame from %s failed", s.id)
	}
	if dst.Empty() {
		return ErrEmptyFrame
	}
	return nil
}

func (s *deviceStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	err := s.capture.Close()
	s.capture = nil
	return err
}
