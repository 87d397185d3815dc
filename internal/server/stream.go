package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/facewatch/internal/overlay"
)

// StreamHandler serves the rendered overlay as MJPEG.
type StreamHandler struct {
	frames *overlay.FrameHub
}

// NewStreamHandler creates a new StreamHandler reading from frames.
func NewStreamHandler(frames *overlay.FrameHub) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams each newly rendered frame to the client until it
// disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	var seq uint64

	for {
		frame, next, err := h.frames.Next(r.Context(), seq)
		if err != nil {
			return
		}
		seq = next

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if flusher != nil {
			flusher.Flush()
		}
	}
}
