// Package session runs the live face detection session: it owns the
// session state and the camera stream, and drives the tick loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/encoder"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/sampler"
)

var (
	// ErrNotIdle is returned by Start when a session is already running.
	ErrNotIdle = errors.New("session is not idle")

	// ErrStartCanceled is returned by Start when Stop was called while the
	// camera was being acquired. The stream has already been released.
	ErrStartCanceled = errors.New("session start canceled by stop")
)

// DefaultRequestTimeout bounds each detection request.
const DefaultRequestTimeout = 5 * time.Second

// Stats summarizes a session.
type Stats struct {
	detector.Stats
	Ticks    uint64 `json:"ticks"`
	Accepted uint64 `json:"accepted"`
	Rendered uint64 `json:"rendered"`
	Stale    uint64 `json:"stale"`
	Errors   uint64 `json:"errors"`
}

// Recorder is told when sessions begin and end.
type Recorder interface {
	SessionStarted(id string, at time.Time) error
	SessionEnded(id string, at time.Time, stats Stats) error
}

// Config holds the collaborators of a Controller.
type Config struct {
	Source   capture.Source
	Backend  detector.Backend
	Sampler  *sampler.Sampler
	Encoder  *encoder.Encoder
	Renderer *overlay.Renderer

	// RequestTimeout bounds each detection request. Negative disables it;
	// zero selects DefaultRequestTimeout.
	RequestTimeout time.Duration

	// NewTicker paces the loop. Defaults to sampler.NewTicker.
	NewTicker sampler.TickerFunc

	Recorder Recorder
	Logger   *slog.Logger
}

// Controller is the only owner of the session state and the stream.
//
// Transitions:
//
//	Idle --Start--> Starting --acquired--> Active --Stop--> Stopping --released--> Idle
//	                Starting --failed--> Idle
//
// Stop during Starting is queued and applied once Starting resolves.
type Controller struct {
	config  Config
	logger  *slog.Logger
	timeout time.Duration

	mu          sync.Mutex
	state       State
	stopPending bool
	recorded    bool
	id          string
	stream      capture.Stream
	client      *detector.Client
	loop        *Loop
	stopCh      chan struct{}
	done        chan struct{}
	lastErr     error
	lastStats   Stats
}

// New creates an idle controller.
func New(config Config) *Controller {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.NewTicker == nil {
		config.NewTicker = sampler.NewTicker
	}

	timeout := config.RequestTimeout
	switch {
	case timeout == 0:
		timeout = DefaultRequestTimeout
	case timeout < 0:
		timeout = 0
	}

	return &Controller{
		config:  config,
		logger:  logger.With("component", "session"),
		timeout: timeout,
		state:   Idle,
	}
}

// Start acquires the camera and begins ticking. On failure the controller
// returns to Idle holding no stream and the acquire error is returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrNotIdle, state)
	}
	c.state = Starting
	c.stopPending = false
	c.mu.Unlock()

	c.logger.Info("starting session")

	stream, err := c.config.Source.Acquire()
	if err == nil && ctx.Err() != nil {
		c.releaseStream(stream)
		err = ctx.Err()
	}

	c.mu.Lock()
	if err != nil {
		c.state = Idle
		c.stopPending = false
		c.lastErr = err
		c.mu.Unlock()

		c.logger.Error("failed to start session", "error", err)
		return err
	}

	id := uuid.NewString()
	client := detector.NewClient(c.config.Backend, detector.ClientOptions{
		Timeout: c.timeout,
		Logger:  c.logger,
	})
	c.config.Renderer.Reset()
	loop := NewLoop(stream, c.config.Sampler, c.config.Encoder, client, c.config.Renderer, c.logger.With("session", id))

	c.state = Active
	c.id = id
	c.stream = stream
	c.client = client
	c.loop = loop
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.lastErr = nil

	pending := c.stopPending
	c.stopPending = false
	record := !pending && c.config.Recorder != nil
	c.recorded = record
	if pending {
		// Stop arrived while acquiring: never start ticking.
		close(c.done)
	} else {
		go c.run(loop, client, c.config.NewTicker(c.config.Sampler.Interval()), c.stopCh, c.done)
	}
	c.mu.Unlock()

	if pending {
		c.logger.Info("stop requested during start", "session", id)
		if err := c.Stop(); err != nil {
			return errors.Join(ErrStartCanceled, err)
		}
		return ErrStartCanceled
	}

	if record {
		if err := c.config.Recorder.SessionStarted(id, time.Now()); err != nil {
			c.logger.Warn("failed to record session start", "session", id, "error", err)
		}
	}

	c.logger.Info("session active", "session", id, "stream", stream.ID(), "fps", c.config.Sampler.Rate())
	return nil
}

// Stop cancels pending work, stops ticking, and releases the stream.
// After Stop returns no request is dispatched and no result is applied.
// Stop on an idle or stopping controller is a no-op; during Starting it is
// queued.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case Idle, Stopping:
		c.mu.Unlock()
		return nil
	case Starting:
		c.stopPending = true
		c.mu.Unlock()
		return nil
	}

	c.state = Stopping
	id, stream, client, loop := c.id, c.stream, c.client, c.loop
	stopCh, done := c.stopCh, c.done
	record := c.recorded
	c.recorded = false
	c.mu.Unlock()

	c.logger.Info("stopping session", "session", id)

	client.Cancel()
	close(stopCh)
	<-done

	err := c.releaseStream(stream)
	stats := loop.Stats()

	c.mu.Lock()
	c.stream = nil
	c.client = nil
	c.loop = nil
	c.stopCh = nil
	c.done = nil
	c.lastStats = stats
	c.state = Idle
	c.mu.Unlock()

	// Sessions canceled during start were never recorded as started.
	if record {
		if rerr := c.config.Recorder.SessionEnded(id, time.Now(), stats); rerr != nil {
			c.logger.Warn("failed to record session end", "session", id, "error", rerr)
		}
	}

	c.logger.Info("session stopped", "session", id,
		"ticks", stats.Ticks, "dispatched", stats.Dispatched, "dropped", stats.Dropped, "accepted", stats.Accepted)

	if err != nil {
		return fmt.Errorf("release stream: %w", err)
	}
	return nil
}

func (c *Controller) releaseStream(stream capture.Stream) error {
	err := c.config.Source.Release(stream)
	if err != nil {
		c.logger.Error("error releasing stream", "error", err)
	}
	return err
}

// run drives the loop until stopCh closes.
func (c *Controller) run(loop *Loop, client *detector.Client, ticker sampler.Ticker, stopCh, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		// Stop wins over pending ticks and results.
		select {
		case <-stopCh:
			return
		default:
		}

		select {
		case <-stopCh:
			return
		case res := <-client.Results():
			if _, err := loop.Apply(res); err != nil {
				c.tickFailed(err)
			}
		case <-ticker.C():
			if err := loop.Tick(); err != nil {
				c.tickFailed(err)
			}
		}
	}
}

func (c *Controller) tickFailed(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Warn("tick failed", "error", err)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the current session's id, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return ""
	}
	return c.id
}

// Stream returns the live stream while the session is Active.
func (c *Controller) Stream() (capture.Stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active || c.stream == nil {
		return nil, false
	}
	return c.stream, true
}

// Stats returns the running session's counters, or the last session's when idle.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop != nil {
		return c.loop.Stats()
	}
	return c.lastStats
}

// LastError returns the most recent start or tick error.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
