package detector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/facewatch/internal/encoder"
)

var testPayload = encoder.Payload{MIMEType: "image/jpeg", Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}}

func TestHTTPBackend_Detect(t *testing.T) {
	var gotBody liveRequest
	var gotContentType, gotPath, gotMethod string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"faces": [{"x": 10, "y": 10, "width": 50, "height": 60}, {"x": 100, "y": 20, "width": 30, "height": 30}]}`))
	}))
	defer ts.Close()

	b := NewHTTPBackend(ts.URL+"/", ts.Client())
	boxes, err := b.Detect(context.Background(), testPayload)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != LivePath {
		t.Errorf("request = %s %s, want POST %s", gotMethod, gotPath, LivePath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody.Image != testPayload.DataURI() {
		t.Errorf("image = %q, want %q", gotBody.Image, testPayload.DataURI())
	}

	want := []BoundingBox{{10, 10, 50, 60}, {100, 20, 30, 30}}
	if len(boxes) != len(want) {
		t.Fatalf("got %d boxes, want %d", len(boxes), len(want))
	}
	for i := range want {
		if boxes[i] != want[i] {
			t.Errorf("box %d = %+v, want %+v", i, boxes[i], want[i])
		}
	}
}

func TestHTTPBackend_Detect_NoFaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces": []}`))
	}))
	defer ts.Close()

	boxes, err := NewHTTPBackend(ts.URL, ts.Client()).Detect(context.Background(), testPayload)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if boxes == nil || len(boxes) != 0 {
		t.Errorf("boxes = %v, want empty non-nil slice", boxes)
	}
}

func TestHTTPBackend_Detect_ServerErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"json error body", http.StatusBadRequest, `{"error": "No image data received"}`, 400, "No image data received"},
		{"plain text body", http.StatusInternalServerError, "boom\n", 500, "boom"},
		{"malformed success body", http.StatusOK, `{"faces": [`, 200, "parse response"},
		{"missing faces field", http.StatusOK, `{"message": "ok"}`, 200, "no faces field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewHTTPBackend(ts.URL, ts.Client()).Detect(context.Background(), testPayload)
			if !errors.Is(err, ErrServer) {
				t.Fatalf("Detect() error = %v, want ErrServer", err)
			}

			var se *ServerError
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not *ServerError", err)
			}
			if se.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", se.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(se.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", se.Message, tt.wantMsg)
			}
		})
	}
}

func TestHTTPBackend_Detect_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTPBackend(url, nil).Detect(context.Background(), testPayload)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Detect() error = %v, want ErrNetwork", err)
	}
	if errors.Is(err, ErrServer) {
		t.Error("network failure should not match ErrServer")
	}
}

func TestHTTPBackend_Detect_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPBackend(ts.URL, ts.Client()).Detect(ctx, testPayload)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Detect() error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, ErrNetwork) {
		t.Error("timeout should match ErrNetwork")
	}
}
