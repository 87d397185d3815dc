package sampler

import (
	"sync"
	"time"
)

// Ticker delivers tick times. The loop reads from C until it calls Stop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return &clockTicker{t: time.NewTicker(d)}
}

type clockTicker struct {
	t *time.Ticker
}

func (c *clockTicker) C() <-chan time.Time { return c.t.C }
func (c *clockTicker) Stop()               { c.t.Stop() }

// ManualTicker fires only when told to. Tests use it to drive the loop one
// tick at a time.
type ManualTicker struct {
	ch   chan time.Time
	mu   sync.Mutex
	done chan struct{}
}

// NewManualTicker creates a ManualTicker.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{
		ch:   make(chan time.Time),
		done: make(chan struct{}),
	}
}

// Func returns a TickerFunc that hands out this ticker, re-armed, to every
// session that asks for one.
func (m *ManualTicker) Func() TickerFunc {
	return func(time.Duration) Ticker {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.done = make(chan struct{})
		return m
	}
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

// Stop unblocks any pending Fire.
func (m *ManualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// Fire delivers one tick. It blocks until the loop receives it and reports
// false if the ticker was stopped first.
func (m *ManualTicker) Fire() bool {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	select {
	case m.ch <- time.Now():
		return true
	case <-done:
		return false
	}
}
