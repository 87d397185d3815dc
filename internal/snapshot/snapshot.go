// Package snapshot captures still images from the live camera stream.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/encoder"
	"github.com/ayusman/facewatch/internal/sampler"
)

var (
	// ErrNoStream is returned by Capture when no camera stream is acquired.
	ErrNoStream = errors.New("no camera stream")

	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("snapshot not found")
)

// Snapshot is a captured still. Snapshots are never mutated after capture.
type Snapshot struct {
	ID         string         `json:"id"`
	Index      int            `json:"index"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Format     encoder.Format `json:"format"`
	Image      []byte         `json:"-"`
	CapturedAt time.Time      `json:"captured_at"`
}

// clone returns a copy that shares no memory with s.
func (s Snapshot) clone() Snapshot {
	s.Image = bytes.Clone(s.Image)
	return s
}

// StreamProvider hands out the live stream, if any.
type StreamProvider interface {
	Stream() (capture.Stream, bool)
}

// Archive persists snapshots.
type Archive interface {
	SaveSnapshot(s Snapshot) error
}

// Options configures a Store.
type Options struct {
	// MaxRetained bounds the in-memory collection. Zero keeps everything.
	MaxRetained int
	Archive     Archive
	Logger      *slog.Logger
}

// Store is an ordered, append-only collection of snapshots.
type Store struct {
	provider StreamProvider
	sampler  *sampler.Sampler
	encoder  *encoder.Encoder
	archive  Archive
	max      int
	logger   *slog.Logger

	mu        sync.RWMutex
	snapshots []Snapshot
	next      int
}

// New creates a store capturing from provider's stream.
func New(provider StreamProvider, opts Options) (*Store, error) {
	enc, err := encoder.New(encoder.Options{Format: encoder.FormatPNG})
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := opts.MaxRetained
	if limit < 0 {
		limit = 0
	}

	return &Store{
		provider: provider,
		sampler:  sampler.New(sampler.Config{}),
		encoder:  enc,
		archive:  opts.Archive,
		max:      limit,
		logger:   logger.With("component", "snapshot"),
	}, nil
}

// Capture grabs the current live image as a PNG and appends it. It works
// whether or not detection is running, as long as a stream is acquired.
func (s *Store) Capture() (Snapshot, error) {
	stream, ok := s.provider.Stream()
	if !ok {
		return Snapshot{}, ErrNoStream
	}

	frame, err := s.sampler.Sample(stream)
	if err != nil {
		if errors.Is(err, capture.ErrStreamReleased) {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrNoStream, err)
		}
		return Snapshot{}, fmt.Errorf("capture: %w", err)
	}
	defer frame.Close()

	payload, err := s.encoder.Encode(frame)
	if err != nil {
		return Snapshot{}, fmt.Errorf("capture: %w", err)
	}

	s.mu.Lock()
	s.next++
	snap := Snapshot{
		ID:         uuid.NewString(),
		Index:      s.next,
		Width:      payload.Width,
		Height:     payload.Height,
		Format:     encoder.FormatPNG,
		Image:      payload.Data,
		CapturedAt: time.Now().UTC(),
	}
	s.snapshots = append(s.snapshots, snap)
	if s.max > 0 && len(s.snapshots) > s.max {
		evicted := len(s.snapshots) - s.max
		s.snapshots = append([]Snapshot(nil), s.snapshots[evicted:]...)
	}
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.SaveSnapshot(snap.clone()); err != nil {
			s.logger.Warn("failed to archive snapshot", "id", snap.ID, "error", err)
		}
	}

	s.logger.Info("captured snapshot", "id", snap.ID, "index", snap.Index, "width", snap.Width, "height", snap.Height)
	return snap.clone(), nil
}

// List returns copies of the retained snapshots in capture order.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = snap.clone()
	}
	return out
}

// Get returns a copy of the snapshot with the given id.
func (s *Store) Get(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.snapshots {
		if snap.ID == id {
			return snap.clone(), nil
		}
	}
	return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Len returns the number of retained snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
