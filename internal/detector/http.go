package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/facewatch/internal/encoder"
)

// LivePath is the backend route for per-frame detection.
const LivePath = "/detect-live-camera"

// maxResponseBytes bounds how much of a backend response is read.
const maxResponseBytes = 1 << 20

// NewHTTPClient returns an http.Client tuned for many small same-host
// requests. It sets no overall timeout; per-request deadlines come from the
// context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// HTTPBackend implements Backend against the detection service's
// /detect-live-camera endpoint.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a backend rooted at baseURL, e.g. "http://localhost:5000".
// A nil client selects NewHTTPClient.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// liveRequest is the JSON body sent to the backend.
type liveRequest struct {
	Image string `json:"image"`
}

// liveResponse is the JSON body returned by the backend.
type liveResponse struct {
	Faces []BoundingBox `json:"faces"`
	Error string        `json:"error,omitempty"`
}

// Detect posts the payload as a data URI and decodes the returned faces.
func (b *HTTPBackend) Detect(ctx context.Context, payload encoder.Payload) ([]BoundingBox, error) {
	body, err := json.Marshal(liveRequest{Image: payload.DataURI()})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+LivePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	var parsed liveResponse
	decodeErr := json.Unmarshal(data, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: "parse response: " + decodeErr.Error()}
	}

	// "faces": [] decodes to an empty slice; a missing key leaves it nil.
	if parsed.Faces == nil {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: "response has no faces field"}
	}
	return parsed.Faces, nil
}
