package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/encoder"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/sampler"
	"github.com/ayusman/facewatch/internal/server"
	"github.com/ayusman/facewatch/internal/session"
	"github.com/ayusman/facewatch/internal/snapshot"
	"github.com/ayusman/facewatch/internal/store"
)

// fakeDetector serves /detect-live-camera, answering every request with
// one face after delay. It tracks how many requests overlap.
type fakeDetector struct {
	delay time.Duration

	requests    atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	mu     sync.Mutex
	images []string
}

func (f *fakeDetector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != detector.LivePath || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if n <= max || f.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}
	f.requests.Add(1)

	var body struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	f.mu.Lock()
	f.images = append(f.images, body.Image)
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"faces": []map[string]int{{"x": 10, "y": 12, "width": 30, "height": 30}},
	})
}

type harness struct {
	ts       *httptest.Server
	ctrl     *session.Controller
	source   *capture.MockSource
	detector *fakeDetector
}

func newHarness(t *testing.T, delay time.Duration) *harness {
	t.Helper()

	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 120, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { mat.Close() })

	db, err := store.New(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := &fakeDetector{delay: delay}
	backendServer := httptest.NewServer(fake)
	t.Cleanup(backendServer.Close)

	enc, err := encoder.New(encoder.Options{Format: encoder.FormatJPEG, Quality: 80})
	if err != nil {
		t.Fatalf("encoder.New() error = %v", err)
	}

	source := capture.NewMockSource([]*gocv.Mat{&mat})
	frames := overlay.NewFrameHub(0)
	renderer := overlay.NewRenderer(frames)
	t.Cleanup(func() { renderer.Close() })

	hub := server.NewOverlayHub(nil)
	renderer.OnAccept(hub.Publish)

	ctrl := session.New(session.Config{
		Source:         source,
		Backend:        detector.NewHTTPBackend(backendServer.URL, detector.NewHTTPClient()),
		Sampler:        sampler.New(sampler.Config{FPS: 60, RefreshRate: 60}),
		Encoder:        enc,
		Renderer:       renderer,
		RequestTimeout: 2 * time.Second,
		Recorder:       db.Sessions(),
	})
	t.Cleanup(func() { ctrl.Stop() })

	snaps, err := snapshot.New(ctrl, snapshot.Options{Archive: db.Snapshots()})
	if err != nil {
		t.Fatalf("snapshot.New() error = %v", err)
	}

	ts := httptest.NewServer(server.New(server.Config{
		Controller: ctrl,
		Snapshots:  snaps,
		Store:      db,
		Frames:     frames,
		Overlay:    hub,
	}))
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})

	return &harness{ts: ts, ctrl: ctrl, source: source, detector: fake}
}

func (h *harness) post(t *testing.T, path string) int {
	t.Helper()
	resp, err := h.ts.Client().Post(h.ts.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestE2E_LiveDetectionWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t, 5*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/api/overlay"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial overlay error = %v", err)
	}
	defer conn.Close()

	t.Run("Start", func(t *testing.T) {
		if code := h.post(t, "/api/session/start"); code != http.StatusOK {
			t.Fatalf("start status = %d, want %d", code, http.StatusOK)
		}
	})

	t.Run("OverlaySequencesIncrease", func(t *testing.T) {
		var last uint64
		for i := 0; i < 5; i++ {
			conn.SetReadDeadline(time.Now().Add(3 * time.Second))
			var msg server.OverlayMessage
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("ReadJSON() error = %v", err)
			}
			if msg.Sequence <= last {
				t.Fatalf("sequence %d after %d", msg.Sequence, last)
			}
			last = msg.Sequence
			if len(msg.Faces) != 1 || msg.Faces[0].Width != 30 {
				t.Errorf("faces = %+v", msg.Faces)
			}
		}
	})

	t.Run("PayloadIsJPEGDataURI", func(t *testing.T) {
		h.detector.mu.Lock()
		defer h.detector.mu.Unlock()
		if len(h.detector.images) == 0 || !strings.HasPrefix(h.detector.images[0], "data:image/jpeg;base64,") {
			t.Error("backend did not receive a JPEG data URI")
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		if code := h.post(t, "/api/snapshots"); code != http.StatusCreated {
			t.Fatalf("capture status = %d, want %d", code, http.StatusCreated)
		}
	})

	t.Run("Stop", func(t *testing.T) {
		if code := h.post(t, "/api/session/stop"); code != http.StatusOK {
			t.Fatalf("stop status = %d, want %d", code, http.StatusOK)
		}
		if h.source.Open() != 0 {
			t.Errorf("open streams = %d, want 0", h.source.Open())
		}

		// Let a request already on the wire land before counting.
		time.Sleep(20 * time.Millisecond)
		after := h.detector.requests.Load()
		time.Sleep(100 * time.Millisecond)
		if got := h.detector.requests.Load(); got != after {
			t.Errorf("backend requests grew from %d to %d after stop", after, got)
		}
	})

	t.Run("SnapshotAfterStopConflicts", func(t *testing.T) {
		if code := h.post(t, "/api/snapshots"); code != http.StatusConflict {
			t.Errorf("capture status = %d, want %d", code, http.StatusConflict)
		}
	})
}

func TestE2E_SlowBackendSingleFlight(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	// Ticks every ~16ms against a backend taking 150ms.
	h := newHarness(t, 150*time.Millisecond)

	if code := h.post(t, "/api/session/start"); code != http.StatusOK {
		t.Fatalf("start status = %d, want %d", code, http.StatusOK)
	}
	time.Sleep(500 * time.Millisecond)
	if code := h.post(t, "/api/session/stop"); code != http.StatusOK {
		t.Fatalf("stop status = %d, want %d", code, http.StatusOK)
	}

	if got := h.detector.maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent backend requests = %d, want 1", got)
	}

	stats := h.ctrl.Stats()
	if stats.Dropped == 0 {
		t.Error("expected dropped ticks while the backend was busy")
	}
	if stats.Dispatched > stats.Ticks {
		t.Errorf("dispatched %d > ticks %d", stats.Dispatched, stats.Ticks)
	}
}

func TestE2E_RestartStartsNewSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t, time.Millisecond)

	var ids []string
	for i := 0; i < 2; i++ {
		if code := h.post(t, "/api/session/start"); code != http.StatusOK {
			t.Fatalf("start #%d status = %d", i, code)
		}
		ids = append(ids, h.ctrl.SessionID())
		time.Sleep(50 * time.Millisecond)
		if code := h.post(t, "/api/session/stop"); code != http.StatusOK {
			t.Fatalf("stop #%d status = %d", i, code)
		}
	}

	if ids[0] == ids[1] {
		t.Error("restart reused the session id")
	}

	resp, err := h.ts.Client().Get(h.ts.URL + "/api/sessions")
	if err != nil {
		t.Fatalf("GET /api/sessions error = %v", err)
	}
	defer resp.Body.Close()

	var history struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	json.NewDecoder(resp.Body).Decode(&history)
	if len(history.Sessions) != 2 {
		t.Errorf("recorded sessions = %d, want 2", len(history.Sessions))
	}
	if h.source.Acquired() != 2 || h.source.Released() != 2 {
		t.Errorf("acquired=%d released=%d, want 2/2", h.source.Acquired(), h.source.Released())
	}
}
