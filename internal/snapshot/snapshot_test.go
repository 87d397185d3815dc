package snapshot

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

type fakeProvider struct {
	stream capture.Stream
}

func (f *fakeProvider) Stream() (capture.Stream, bool) {
	return f.stream, f.stream != nil
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []Snapshot
	err   error
}

func (f *fakeArchive) SaveSnapshot(s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return f.err
}

func newStream(t *testing.T) capture.Stream {
	t.Helper()
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 24, 32, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { mat.Close() })

	source := capture.NewMockSource([]*gocv.Mat{&mat})
	stream, err := source.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	t.Cleanup(func() { source.Release(stream) })
	return stream
}

func TestCapture_NoStream(t *testing.T) {
	s, err := New(&fakeProvider{}, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := s.Capture(); !errors.Is(err, ErrNoStream) {
		t.Errorf("Capture() error = %v, want ErrNoStream", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestCapture_StoppedStream(t *testing.T) {
	stream := newStream(t)
	stream.Stop()

	s, _ := New(&fakeProvider{stream: stream}, Options{})
	if _, err := s.Capture(); !errors.Is(err, ErrNoStream) {
		t.Errorf("Capture() error = %v, want ErrNoStream", err)
	}
}

func TestCapture_AppendsInOrder(t *testing.T) {
	s, _ := New(&fakeProvider{stream: newStream(t)}, Options{})

	var ids []string
	for i := 0; i < 3; i++ {
		snap, err := s.Capture()
		if err != nil {
			t.Fatalf("Capture() #%d error = %v", i, err)
		}
		if snap.Index != i+1 {
			t.Errorf("Index = %d, want %d", snap.Index, i+1)
		}
		if snap.Width != 32 || snap.Height != 24 {
			t.Errorf("size = %dx%d, want 32x24", snap.Width, snap.Height)
		}
		if !bytes.HasPrefix(snap.Image, pngMagic) {
			t.Error("image is not a PNG")
		}
		ids = append(ids, snap.ID)
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	for i, snap := range list {
		if snap.ID != ids[i] {
			t.Errorf("List()[%d].ID = %s, want %s", i, snap.ID, ids[i])
		}
	}

	got, err := s.Get(ids[1])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Index != 2 {
		t.Errorf("Get().Index = %d, want 2", got.Index)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCapture_MaxRetained(t *testing.T) {
	s, _ := New(&fakeProvider{stream: newStream(t)}, Options{MaxRetained: 2})

	for i := 0; i < 5; i++ {
		if _, err := s.Capture(); err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List() len = %d, want 2", len(list))
	}
	if list[0].Index != 4 || list[1].Index != 5 {
		t.Errorf("retained indexes = %d, %d; want 4, 5", list[0].Index, list[1].Index)
	}
}

func TestCapture_Archives(t *testing.T) {
	archive := &fakeArchive{err: errors.New("disk full")}
	s, _ := New(&fakeProvider{stream: newStream(t)}, Options{Archive: archive})

	snap, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture() error = %v, archive failures must not fail capture", err)
	}
	if len(archive.saved) != 1 || archive.saved[0].ID != snap.ID {
		t.Errorf("archived = %+v", archive.saved)
	}
}

func TestSnapshots_ReturnedCopiesDoNotAliasStore(t *testing.T) {
	s, _ := New(&fakeProvider{stream: newStream(t)}, Options{})

	captured, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	want := bytes.Clone(captured.Image)

	captured.Image[0] = 0
	listed := s.List()
	listed[0].Image[1] = 0
	got, _ := s.Get(captured.ID)
	got.Image[2] = 0

	again, err := s.Get(captured.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(again.Image, want) {
		t.Error("stored image changed after mutating returned snapshots")
	}
	if !bytes.Equal(s.List()[0].Image, want) {
		t.Error("listed image changed after mutating returned snapshots")
	}
}
