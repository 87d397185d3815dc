package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back pre-built frames for testing. It counts Acquire and
// Release calls so callers can check that streams are never leaked.
type MockSource struct {
	frames     []*gocv.Mat
	acquireErr error
	mu         sync.Mutex
	acquired   int
	released   int
	open       int
	next       int
}

// NewMockSource creates a source whose streams loop over frames.
func NewMockSource(frames []*gocv.Mat) *MockSource {
	return &MockSource{frames: frames}
}

// SetAcquireError makes subsequent Acquire calls fail with err.
func (m *MockSource) SetAcquireError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireErr = err
}

func (m *MockSource) Acquire() (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.acquireErr != nil {
		return nil, m.acquireErr
	}

	m.acquired++
	m.open++
	m.next++
	return &mockStream{id: fmt.Sprintf("mock-%d", m.next), source: m}, nil
}

func (m *MockSource) Release(s Stream) error {
	m.mu.Lock()
	m.released++
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Stop()
}

// Acquired returns the number of successful Acquire calls.
func (m *MockSource) Acquired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// Released returns the number of Release calls.
func (m *MockSource) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Open returns the number of streams acquired but not yet stopped.
func (m *MockSource) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *MockSource) frame(i int) (*gocv.Mat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.frames) == 0 {
		return nil, fmt.Errorf("no frames available")
	}
	return m.frames[i%len(m.frames)], nil
}

func (m *MockSource) streamStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open--
}

type mockStream struct {
	id      string
	source  *MockSource
	mu      sync.Mutex
	index   int
	stopped bool
}

func (s *mockStream) ID() string { return s.id }

func (s *mockStream) Read(dst *gocv.Mat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStreamReleased
	}

	src, err := s.source.frame(s.index)
	if err != nil {
		return err
	}
	s.index++

	src.CopyTo(dst)
	return nil
}

func (s *mockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.source.streamStopped()
	return nil
}
