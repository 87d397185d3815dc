package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/facewatch/internal/encoder"
)

// Ticket is a claim on the client's single in-flight slot. Its sequence
// number is unique and strictly increasing within the session, starting at 1.
type Ticket struct {
	Seq uint64
}

// Result is a resolved detection request.
type Result struct {
	Seq     uint64
	Boxes   []BoundingBox
	Err     error
	Latency time.Duration
}

// Stats counts what happened to the session's ticks.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Dropped    uint64 `json:"dropped"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client dispatches frames for one session. At most one request is
// outstanding at a time: a tick that finds the slot taken is dropped, not
// queued. After Cancel no request is dispatched and no result is delivered.
type Client struct {
	backend Backend
	timeout time.Duration
	logger  *slog.Logger
	results chan Result
	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	seq      uint64
	inFlight bool
	canceled bool
	stats    Stats
}

// NewClient creates a client for a fresh session.
func NewClient(backend Backend, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Client{
		backend: backend,
		timeout: opts.Timeout,
		logger:  logger,
		results: make(chan Result, 1),
		ctx:     ctx,
		stop:    stop,
	}
}

// Reserve claims the in-flight slot and assigns the next sequence number.
// It returns false when a request is already outstanding, which counts the
// tick as dropped, or when the client has been canceled.
func (c *Client) Reserve() (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.canceled {
		return Ticket{}, false
	}
	if c.inFlight {
		c.stats.Dropped++
		return Ticket{}, false
	}

	c.inFlight = true
	c.seq++
	return Ticket{Seq: c.seq}, true
}

// Abandon frees a reserved slot without sending, e.g. when encoding failed.
func (c *Client) Abandon(t Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight && t.Seq == c.seq {
		c.inFlight = false
	}
}

// Send dispatches payload under ticket t. The request runs in its own
// goroutine; its result arrives on Results. The slot is freed when the
// request resolves, whether it succeeded, failed or timed out.
func (c *Client) Send(t Ticket, payload encoder.Payload) {
	c.mu.Lock()
	if c.canceled {
		c.inFlight = false
		c.mu.Unlock()
		return
	}
	c.stats.Dispatched++
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.deliver(c.do(t, payload))
	}()
}

func (c *Client) do(t Ticket, payload encoder.Payload) Result {
	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	boxes, err := c.backend.Detect(ctx, payload)
	latency := time.Since(start)

	if err != nil && c.ctx.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w after %v: %v", ErrTimeout, c.timeout, err)
	}

	return Result{Seq: t.Seq, Boxes: boxes, Err: err, Latency: latency}
}

func (c *Client) deliver(res Result) {
	c.mu.Lock()
	c.inFlight = false
	canceled := c.canceled
	if !canceled {
		if res.Err != nil {
			c.stats.Failed++
		} else {
			c.stats.Completed++
		}
	}
	c.mu.Unlock()

	if canceled {
		c.logger.Debug("discarding result after cancel", "seq", res.Seq)
		return
	}

	select {
	case c.results <- res:
	case <-c.ctx.Done():
		c.logger.Debug("discarding result after cancel", "seq", res.Seq)
	}
}

// Results delivers resolved requests in resolution order.
func (c *Client) Results() <-chan Result {
	return c.results
}

// Cancel sets the guard: no further dispatch, the in-flight request is
// aborted, and results resolving afterwards are discarded.
func (c *Client) Cancel() {
	c.mu.Lock()
	c.canceled = true
	c.mu.Unlock()

	c.stop()
}

// Canceled reports whether Cancel has been called.
func (c *Client) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// Busy reports whether a request is outstanding.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Stats returns a copy of the counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Wait blocks until every dispatched request goroutine has returned.
func (c *Client) Wait() {
	c.wg.Wait()
}
