package detector

import (
	"context"
	"sync"

	"github.com/ayusman/facewatch/internal/encoder"
)

// MockBackend is a test implementation of the Backend interface.
// It allows tests to control the detection results and to hold requests
// open until released.
type MockBackend struct {
	mu       sync.Mutex
	boxes    []BoundingBox
	err      error
	gate     chan struct{}
	calls    int
	payloads []encoder.Payload
}

// NewMockBackend creates a new MockBackend that detects no faces.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// SetBoxes sets the boxes returned by Detect.
func (m *MockBackend) SetBoxes(boxes []BoundingBox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes = boxes
}

// SetError sets the error returned by Detect.
func (m *MockBackend) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes subsequent Detect calls block until Release or until their
// context ends.
func (m *MockBackend) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Release unblocks every held Detect call.
func (m *MockBackend) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns how many times Detect has been entered.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Payloads returns every payload received, in call order.
func (m *MockBackend) Payloads() []encoder.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]encoder.Payload(nil), m.payloads...)
}

// Detect returns the configured boxes or error.
func (m *MockBackend) Detect(ctx context.Context, payload encoder.Payload) ([]BoundingBox, error) {
	m.mu.Lock()
	m.calls++
	m.payloads = append(m.payloads, payload)
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]BoundingBox(nil), m.boxes...), nil
}
