package overlay

import (
	"sync"

	"gocv.io/x/gocv"
)

// Window presents frames in a desktop window via OpenCV highgui.
// On macOS highgui must be driven from the main thread.
type Window struct {
	mu     sync.Mutex
	window *gocv.Window
	closed bool
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	w := gocv.NewWindow(title)
	w.SetWindowProperty(gocv.WindowPropertyAutosize, gocv.WindowAutosize)
	return &Window{window: w}
}

func (w *Window) Present(canvas *gocv.Mat) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.window.IMShow(*canvas)
	w.window.WaitKey(1)
	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.window.Close()
}
