// Package capture adapts camera frame deliveries to the pipeline.
//
// Two delivery styles are supported. ImageAdapter handles event-driven
// capture where the callback pulls the latest planar image from a reader
// and must close it. PreviewAdapter handles push capture where the camera
// hands over one NV21 buffer that must be given back to the camera's
// callback pool. In both, refused frames are returned immediately and
// admitted frames are returned by the pipeline once processed.
package capture

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/teslashibe/go-framegate/pkg/frame"
	"github.com/teslashibe/go-framegate/pkg/pipeline"
)

var (
	// ErrClosed is returned by readers after Close.
	ErrClosed = errors.New("capture: closed")

	// ErrNoPreviewSize is returned by a camera that has no size yet.
	ErrNoPreviewSize = errors.New("capture: preview size unknown")
)

// Sink is the pipeline surface capture callbacks use.
type Sink interface {
	PreviewSize() (frame.Size, bool)
	PreviewSizeChosen(size frame.Size, rotation int)
	Admit() (*pipeline.Admission, bool)
}

// Session is a Sink whose lifecycle a source controls, such as a remote
// camera connecting and disconnecting.
type Session interface {
	Sink
	StartSession(ctx context.Context, cfg pipeline.SessionConfig) error
	StopSession(ctx context.Context) error
}

var _ Session = (*pipeline.Pipeline)(nil)

// Source produces frames into a Sink until ctx ends or it fails.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
	Stats() SourceStats
}

// SourceStats counts frames a source has produced.
type SourceStats struct {
	Produced uint64 `json:"produced"`
	Skipped  uint64 `json:"skipped"`
}

// Rotation is a display rotation code, 0..3 for quarter turns.
type Rotation int

// Rotation codes.
const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees returns the rotation in degrees. Unknown codes map to 0.
func (r Rotation) Degrees() int {
	switch r {
	case Rotation90:
		return 90
	case Rotation180:
		return 180
	case Rotation270:
		return 270
	default:
		return 0
	}
}

// AdapterStats counts callback outcomes.
type AdapterStats struct {
	Frames   uint64 `json:"frames"`
	Admitted uint64 `json:"admitted"`
	Dropped  uint64 `json:"dropped"`
	Errors   uint64 `json:"errors"`
}

type adapterCounters struct {
	frames   atomic.Uint64
	admitted atomic.Uint64
	dropped  atomic.Uint64
	errors   atomic.Uint64
}

func (c *adapterCounters) snapshot() AdapterStats {
	return AdapterStats{
		Frames:   c.frames.Load(),
		Admitted: c.admitted.Load(),
		Dropped:  c.dropped.Load(),
		Errors:   c.errors.Load(),
	}
}
