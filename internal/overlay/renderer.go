// Package overlay draws the live picture and the latest detected faces onto
// a display surface.
package overlay

import (
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
)

// Box stroke defaults.
var (
	DefaultColor     = color.RGBA{R: 255, A: 255}
	DefaultThickness = 2
)

// Surface displays a composed frame. The canvas is only valid for the
// duration of the call; surfaces that keep it must copy it.
type Surface interface {
	Present(canvas *gocv.Mat) error
}

// Renderer is the single writer of its surface. Each Render clears the
// canvas, draws the frame, and strokes the boxes of the latest accepted
// result. A result is accepted only if its sequence number is strictly
// greater than every sequence rendered before it.
type Renderer struct {
	surface   Surface
	color     color.RGBA
	thickness int
	canvas    gocv.Mat

	mu       sync.RWMutex
	lastSeq  uint64
	boxes    []detector.BoundingBox
	frames   uint64
	stale    uint64
	onAccept []func(detector.Result)
}

// NewRenderer creates a renderer presenting to surface.
func NewRenderer(surface Surface) *Renderer {
	return &Renderer{
		surface:   surface,
		color:     DefaultColor,
		thickness: DefaultThickness,
		canvas:    gocv.NewMat(),
	}
}

// OnAccept registers fn to be called with every accepted result.
func (r *Renderer) OnAccept(fn func(detector.Result)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAccept = append(r.onAccept, fn)
}

// Accept applies res if it is newer than anything already applied.
// Failed and stale results are ignored and Accept returns false.
func (r *Renderer) Accept(res detector.Result) bool {
	if res.Err != nil {
		return false
	}

	r.mu.Lock()
	if res.Seq <= r.lastSeq {
		r.stale++
		r.mu.Unlock()
		return false
	}
	r.lastSeq = res.Seq
	r.boxes = append(r.boxes[:0:0], res.Boxes...)
	listeners := r.onAccept
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
	return true
}

// Render draws frame plus the current boxes and presents the result.
// It runs every tick whether or not a new result has arrived.
func (r *Renderer) Render(frame *capture.Frame) error {
	if frame == nil || frame.Mat.Empty() {
		return capture.ErrEmptyFrame
	}

	r.mu.RLock()
	boxes := r.boxes
	r.mu.RUnlock()

	// CopyTo reallocates the canvas when the frame size changes.
	frame.Mat.CopyTo(&r.canvas)
	for _, b := range boxes {
		gocv.Rectangle(&r.canvas, b.Rect(), r.color, r.thickness)
	}

	r.mu.Lock()
	r.frames++
	r.mu.Unlock()

	if r.surface == nil {
		return nil
	}
	return r.surface.Present(&r.canvas)
}

// Reset forgets the applied sequence and boxes for a new session.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeq = 0
	r.boxes = nil
	r.frames = 0
	r.stale = 0
}

// Boxes returns a copy of the boxes currently drawn.
func (r *Renderer) Boxes() []detector.BoundingBox {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]detector.BoundingBox(nil), r.boxes...)
}

// LastSequence returns the sequence of the latest accepted result, 0 if none.
func (r *Renderer) LastSequence() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeq
}

// Frames returns how many frames have been rendered since the last Reset.
func (r *Renderer) Frames() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames
}

// Stale returns how many results were discarded as out of order.
func (r *Renderer) Stale() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale
}

// Close releases the canvas.
func (r *Renderer) Close() error {
	return r.canvas.Close()
}
