// Package capture owns the live camera stream used by the detection loop.
package capture

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrPermissionDenied is returned by Acquire when the operating system
	// refuses access to the camera device.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceUnavailable is returned by Acquire when the camera cannot be
	// opened or produces no frames.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrStreamReleased is returned when reading from a released stream.
	ErrStreamReleased = errors.New("stream has been released")

	// ErrEmptyFrame is returned when the device hands back an empty image.
	ErrEmptyFrame = errors.New("captured frame is empty")
)

// Stream is a handle on live camera tracks. It is created by a Source and
// must be given back through Source.Release.
type Stream interface {
	// ID identifies the stream for logging.
	ID() string

	// Read copies the current live image into dst.
	Read(dst *gocv.Mat) error

	// Stop stops every constituent track. Calling Stop more than once is a no-op.
	Stop() error
}

// Source hands out camera streams.
type Source interface {
	// Acquire requests camera access. It fails without side effects.
	Acquire() (Stream, error)

	// Release stops the stream. It is safe to call with a nil or an
	// already-released stream.
	Release(s Stream) error
}

// Frame is a raster snapshot of the live image taken at tick time.
// The caller owns the Mat and must Close the frame once done with it.
type Frame struct {
	Mat       gocv.Mat
	Width     int
	Height    int
	Timestamp time.Time
}

// NewFrame wraps mat, reading its current dimensions.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{
		Mat:       mat,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Timestamp: time.Now(),
	}
}

// Close releases the frame's pixel buffer.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}
