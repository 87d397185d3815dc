// Package encoder turns frames into compressed still-image payloads.
package encoder

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/facewatch/internal/capture"
)

// Format is a still-image encoding.
type Format string

const (
	// FormatJPEG encodes lossy JPEG at the configured quality.
	FormatJPEG Format = "jpeg"
	// FormatPNG encodes lossless PNG.
	FormatPNG Format = "png"
)

// DefaultQuality matches the browser default for canvas JPEG export.
const DefaultQuality = 92

// ErrUnknownFormat is returned for formats other than jpeg and png.
var ErrUnknownFormat = errors.New("unknown image format")

// ParseFormat accepts "jpeg", "jpg" and "png" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg", "":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// MIMEType returns the media type for f.
func (f Format) MIMEType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Options configures the encoder.
type Options struct {
	Format  Format
	Quality int // 1-100
}

// Payload is an encoded frame ready for transport.
type Payload struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// DataURI renders the payload as a base64 data URI.
func (p Payload) DataURI() string {
	return "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Encoder encodes frames with fixed options. Encoding is a pure function
// of the frame and the options.
type Encoder struct {
	opts   Options
	ext    gocv.FileExt
	params []int
}

// New creates an Encoder. Quality is clamped to 1-100; zero selects DefaultQuality.
func New(opts Options) (*Encoder, error) {
	format, err := ParseFormat(string(opts.Format))
	if err != nil {
		return nil, err
	}
	opts.Format = format

	if opts.Quality == 0 {
		opts.Quality = DefaultQuality
	}
	opts.Quality = max(1, min(100, opts.Quality))

	e := &Encoder{opts: opts}
	switch format {
	case FormatPNG:
		e.ext = gocv.PNGFileExt
		e.params = []int{int(gocv.IMWritePngCompression), pngCompression(opts.Quality)}
	default:
		e.ext = gocv.JPEGFileExt
		e.params = []int{int(gocv.IMWriteJpegQuality), opts.Quality}
	}
	return e, nil
}

// Options returns the effective options.
func (e *Encoder) Options() Options {
	return e.opts
}

// Encode compresses the frame's current image.
func (e *Encoder) Encode(frame *capture.Frame) (Payload, error) {
	if frame == nil || frame.Mat.Empty() {
		return Payload{}, capture.ErrEmptyFrame
	}

	buf, err := gocv.IMEncodeWithParams(e.ext, frame.Mat, e.params)
	if err != nil {
		return Payload{}, fmt.Errorf("encode %s: %w", e.opts.Format, err)
	}
	defer buf.Close()

	// GetBytes aliases C memory that Close frees.
	data := append([]byte(nil), buf.GetBytes()...)

	return Payload{
		MIMEType: e.opts.Format.MIMEType(),
		Data:     data,
		Width:    frame.Width,
		Height:   frame.Height,
	}, nil
}

// pngCompression maps quality 1-100 onto zlib levels 9-0: higher quality
// spends less time compressing.
func pngCompression(quality int) int {
	return 9 - (quality-1)*9/99
}
