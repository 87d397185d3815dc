package session

import (
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/encoder"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/sampler"
)

func testFrames(t *testing.T) []*gocv.Mat {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { mat.Close() })
	return []*gocv.Mat{&mat}
}

func testEncoder(t *testing.T) *encoder.Encoder {
	t.Helper()
	enc, err := encoder.New(encoder.Options{Format: encoder.FormatJPEG})
	if err != nil {
		t.Fatalf("encoder.New() error = %v", err)
	}
	return enc
}

func testRenderer(t *testing.T) (*overlay.Renderer, *overlay.MemorySurface) {
	t.Helper()
	surface := overlay.NewMemorySurface()
	r := overlay.NewRenderer(surface)
	t.Cleanup(func() {
		r.Close()
		surface.Close()
	})
	return r, surface
}

func testSampler() *sampler.Sampler {
	return sampler.New(sampler.Config{})
}

func newMockSource(t *testing.T) *capture.MockSource {
	return capture.NewMockSource(testFrames(t))
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
