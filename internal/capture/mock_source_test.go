package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func readFrame(s Stream) (*Frame, error) {
	mat := gocv.NewMat()
	if err := s.Read(&mat); err != nil {
		mat.Close()
		return nil, err
	}
	return NewFrame(mat), nil
}

func TestMockSource_Playback(t *testing.T) {
	small := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer small.Close()
	large := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer large.Close()

	src := NewMockSource([]*gocv.Mat{&small, &large})

	s, err := src.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer src.Release(s)

	// Frames loop and each read reports its own dimensions.
	want := [][2]int{{320, 240}, {640, 480}, {320, 240}}
	for i, dims := range want {
		f, err := readFrame(s)
		if err != nil {
			t.Fatalf("read %d error = %v", i, err)
		}
		if f.Width != dims[0] || f.Height != dims[1] {
			t.Errorf("read %d size = %dx%d, want %dx%d", i, f.Width, f.Height, dims[0], dims[1])
		}
		f.Close()
	}
}

func TestMockSource_AcquireError(t *testing.T) {
	src := NewMockSource(nil)
	src.SetAcquireError(ErrPermissionDenied)

	s, err := src.Acquire()
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Acquire() error = %v, want ErrPermissionDenied", err)
	}
	if s != nil {
		t.Error("expected nil stream on failure")
	}
	if src.Acquired() != 0 || src.Open() != 0 {
		t.Errorf("acquired = %d, open = %d, want 0, 0", src.Acquired(), src.Open())
	}
}

func TestMockSource_ReleaseIdempotent(t *testing.T) {
	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	src := NewMockSource([]*gocv.Mat{&frame})
	s, err := src.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := src.Release(s); err != nil {
			t.Fatalf("Release() #%d error = %v", i, err)
		}
	}
	if err := src.Release(nil); err != nil {
		t.Fatalf("Release(nil) error = %v", err)
	}

	if got := src.Open(); got != 0 {
		t.Errorf("Open() = %d, want 0", got)
	}
	if _, err := readFrame(s); !errors.Is(err, ErrStreamReleased) {
		t.Errorf("read after release error = %v, want ErrStreamReleased", err)
	}
}
