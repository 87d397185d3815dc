package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MemorySurface keeps a copy of the last presented canvas.
type MemorySurface struct {
	mu       sync.Mutex
	last     gocv.Mat
	presents int
}

// NewMemorySurface creates an empty MemorySurface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{last: gocv.NewMat()}
}

func (s *MemorySurface) Present(canvas *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	canvas.CopyTo(&s.last)
	s.presents++
	return nil
}

// Last returns a clone of the last canvas. The caller must Close it.
func (s *MemorySurface) Last() gocv.Mat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.Clone()
}

// Presents returns how many canvases have been presented.
func (s *MemorySurface) Presents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

// Close releases the stored canvas.
func (s *MemorySurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.Close()
}

// MultiSurface presents to every surface in order.
type MultiSurface []Surface

func (m MultiSurface) Present(canvas *gocv.Mat) error {
	var errs []error
	for _, s := range m {
		if err := s.Present(canvas); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FrameHub JPEG-encodes each presented canvas and hands the latest encoding
// to any number of waiting readers, e.g. MJPEG HTTP clients.
type FrameHub struct {
	quality int

	mu      sync.Mutex
	frame   []byte
	seq     uint64
	updated chan struct{}
}

// NewFrameHub creates a hub encoding at the given JPEG quality.
func NewFrameHub(quality int) *FrameHub {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &FrameHub{
		quality: quality,
		updated: make(chan struct{}),
	}
}

func (h *FrameHub) Present(canvas *gocv.Mat) error {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *canvas, []int{int(gocv.IMWriteJpegQuality), h.quality})
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	h.mu.Lock()
	h.frame = data
	h.seq++
	close(h.updated)
	h.updated = make(chan struct{})
	h.mu.Unlock()
	return nil
}

// Latest returns the most recent JPEG and its sequence, 0 if none yet.
func (h *FrameHub) Latest() ([]byte, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame, h.seq
}

// Next blocks until a frame newer than after is available or ctx ends.
func (h *FrameHub) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		h.mu.Lock()
		if h.seq > after {
			frame, seq := h.frame, h.seq
			h.mu.Unlock()
			return frame, seq, nil
		}
		updated := h.updated
		h.mu.Unlock()

		select {
		case <-updated:
		case <-ctx.Done():
			return nil, after, ctx.Err()
		}
	}
}
