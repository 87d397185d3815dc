package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ayusman/facewatch/internal/capture"
	"github.com/ayusman/facewatch/internal/detector"
	"github.com/ayusman/facewatch/internal/encoder"
	"github.com/ayusman/facewatch/internal/overlay"
	"github.com/ayusman/facewatch/internal/sampler"
)

// Loop is one session's capture-detect-render scheduler. An external timer
// calls Tick; resolved requests are handed to Apply. Both must be called
// from the same goroutine.
//
// Each tick:
//  1. Sample the current live image
//  2. If the detection slot is free, encode the frame and dispatch it
//  3. Render the frame with the boxes of the latest accepted result
//
// Once the client is canceled, Tick and Apply do nothing.
type Loop struct {
	stream   capture.Stream
	sampler  *sampler.Sampler
	encoder  *encoder.Encoder
	client   *detector.Client
	renderer *overlay.Renderer
	logger   *slog.Logger

	ticks    atomic.Uint64
	accepted atomic.Uint64
	failures atomic.Uint64
}

// NewLoop wires a loop over an acquired stream.
func NewLoop(stream capture.Stream, s *sampler.Sampler, e *encoder.Encoder, c *detector.Client, r *overlay.Renderer, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		stream:   stream,
		sampler:  s,
		encoder:  e,
		client:   c,
		renderer: r,
		logger:   logger,
	}
}

// Tick runs one iteration. Errors are per-tick and never stop the loop.
func (l *Loop) Tick() error {
	if l.client.Canceled() {
		return nil
	}
	l.ticks.Add(1)

	frame, err := l.sampler.Sample(l.stream)
	if err != nil {
		l.failures.Add(1)
		return err
	}
	defer frame.Close()

	var errs []error

	if ticket, ok := l.client.Reserve(); ok {
		payload, err := l.encoder.Encode(frame)
		if err != nil {
			l.client.Abandon(ticket)
			errs = append(errs, err)
		} else {
			l.client.Send(ticket, payload)
			l.logger.Debug("dispatched frame", "seq", ticket.Seq, "bytes", len(payload.Data))
		}
	}

	if err := l.renderer.Render(frame); err != nil {
		errs = append(errs, fmt.Errorf("render: %w", err))
	}

	if len(errs) > 0 {
		l.failures.Add(1)
	}
	return errors.Join(errs...)
}

// Apply hands a resolved request to the renderer. It reports whether the
// boxes were accepted; a failed request is returned as an error.
func (l *Loop) Apply(res detector.Result) (bool, error) {
	if l.client.Canceled() {
		return false, nil
	}
	if res.Err != nil {
		l.failures.Add(1)
		return false, fmt.Errorf("detect seq %d: %w", res.Seq, res.Err)
	}

	if !l.renderer.Accept(res) {
		l.logger.Debug("discarded stale result", "seq", res.Seq, "last", l.renderer.LastSequence())
		return false, nil
	}

	l.accepted.Add(1)
	l.logger.Debug("applied result", "seq", res.Seq, "faces", len(res.Boxes), "latency", res.Latency)
	return true, nil
}

// Stats snapshots the loop's and its client's counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Stats:    l.client.Stats(),
		Ticks:    l.ticks.Load(),
		Accepted: l.accepted.Load(),
		Rendered: l.renderer.Frames(),
		Stale:    l.renderer.Stale(),
		Errors:   l.failures.Load(),
	}
}
