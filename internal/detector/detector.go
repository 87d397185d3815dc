// Package detector sends frames to the face detection backend and keeps at
// most one request in flight per session.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/ayusman/facewatch/internal/encoder"
)

var (
	// ErrNetwork covers transport failures: refused connections, resets, timeouts.
	ErrNetwork = errors.New("detection backend unreachable")

	// ErrServer covers responses the backend produced but that carry no usable result.
	ErrServer = errors.New("detection backend error")

	// ErrTimeout is reported when a request outlives the configured timeout.
	// It matches ErrNetwork.
	ErrTimeout = fmt.Errorf("%w: request timed out", ErrNetwork)
)

// ServerError is a non-2xx or malformed backend response. It matches ErrServer.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("detection backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("detection backend returned %d: %s", e.StatusCode, e.Message)
}

// Is reports whether target is ErrServer.
func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

// BoundingBox is a detected face in source-frame pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Backend runs face detection on an encoded frame.
type Backend interface {
	// Detect returns the faces found in payload, in backend order.
	// Returns an empty slice if no faces are detected.
	//
	// Detect must return promptly once ctx is done. The client's request
	// timeout and Cancel only free the in-flight slot when it does.
	Detect(ctx context.Context, payload encoder.Payload) ([]BoundingBox, error)
}
