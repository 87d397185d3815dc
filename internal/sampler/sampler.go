// Package sampler paces the live loop and rasterizes the current camera
// image into frames.
package sampler

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
)

// Cadence defaults.
const (
	// DefaultFPS is the requested tick rate.
	DefaultFPS = 30
	// DefaultRefreshRate is the display refresh the tick rate is capped at.
	DefaultRefreshRate = 60
)

// Config holds the sampling cadence.
type Config struct {
	// FPS is the requested number of ticks per second.
	FPS int
	// RefreshRate is the display's native refresh rate. Ticks never fire
	// faster than this.
	RefreshRate int
}

// Sampler turns the live stream into frames at a display-capped cadence.
type Sampler struct {
	config Config
}

// New creates a Sampler. Non-positive values fall back to the defaults.
func New(config Config) *Sampler {
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	if config.RefreshRate <= 0 {
		config.RefreshRate = DefaultRefreshRate
	}
	return &Sampler{config: config}
}

// Rate returns the effective tick rate: the requested FPS capped at the refresh rate.
func (s *Sampler) Rate() int {
	return min(s.config.FPS, s.config.RefreshRate)
}

// Interval returns the time between ticks.
func (s *Sampler) Interval() time.Duration {
	return time.Second / time.Duration(s.Rate())
}

// Sample reads the current live image. The frame is sized to whatever the
// stream produces right now, so resolution changes mid-session are picked up
// on the next tick. The caller must Close the returned frame.
func (s *Sampler) Sample(stream capture.Stream) (*capture.Frame, error) {
	if stream == nil {
		return nil, capture.ErrStreamReleased
	}

	mat := gocv.NewMat()
	if err := stream.Read(&mat); err != nil {
		mat.Close()
		return nil, fmt.Errorf("sample %s: %w", stream.ID(), err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("sample %s: %w", stream.ID(), capture.ErrEmptyFrame)
	}

	return capture.NewFrame(mat), nil
}
