// Package synthetic generates YUV test frames for the capture adapters.
package synthetic

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-framegate/pkg/capture"
	"github.com/teslashibe/go-framegate/pkg/frame"
	"github.com/teslashibe/go-framegate/pkg/yuv"
)

// Pattern selects the generated luma.
type Pattern int

const (
	// PatternFlat fills every sample with the configured luma.
	PatternFlat Pattern = iota
	// PatternBars draws a diagonal gradient that moves each frame.
	PatternBars
)

// Config configures a synthetic source.
type Config struct {
	Size     frame.Size
	Layout   frame.Layout
	FPS      int
	Rotation int

	Pattern Pattern
	Luma    byte
	Chroma  byte

	// Buffers is the callback pool depth.
	Buffers int
}

// DefaultConfig returns a 640x480 NV21 source at 30 fps.
func DefaultConfig() Config {
	return Config{
		Size:    frame.Size{Width: 640, Height: 480},
		Layout:  frame.LayoutSemiPlanar,
		FPS:     30,
		Pattern: PatternFlat,
		Luma:    128,
		Chroma:  128,
		Buffers: 3,
	}
}

// Option configures a Source.
type Option func(*Source)

// WithPattern selects the luma pattern.
func WithPattern(p Pattern) Option {
	return func(s *Source) {
		s.cfg.Pattern = p
	}
}

// WithLayout selects semi-planar or planar frames.
func WithLayout(l frame.Layout) Option {
	return func(s *Source) {
		s.cfg.Layout = l
	}
}

// Source ticks out frames at a fixed rate through a capture adapter.
type Source struct {
	cfg    Config
	logger *slog.Logger

	produced atomic.Uint64
	skipped  atomic.Uint64
	phase    int
}

// New creates a synthetic source.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Size.Empty() {
		cfg.Size = def.Size
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = def.Buffers
	}
	if cfg.Layout == frame.LayoutUnknown {
		cfg.Layout = def.Layout
	}
	s := &Source{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "synthetic".
func (s *Source) Name() string {
	return "synthetic"
}

// Stats returns frame counters.
func (s *Source) Stats() capture.SourceStats {
	return capture.SourceStats{
		Produced: s.produced.Load(),
		Skipped:  s.skipped.Load(),
	}
}

// Run generates frames into sink until ctx ends.
func (s *Source) Run(ctx context.Context, sink capture.Sink) error {
	s.logger.Info("synthetic source started",
		"size", s.cfg.Size.String(),
		"layout", s.cfg.Layout.String(),
		"fps", s.cfg.FPS,
	)
	defer s.logger.Info("synthetic source stopped",
		"produced", s.produced.Load(),
		"skipped", s.skipped.Load(),
	)

	var tick func()
	switch s.cfg.Layout {
	case frame.LayoutPlanar:
		t, closeFn := s.planarLoop(sink)
		defer closeFn()
		tick = t
	default:
		tick = s.semiPlanarLoop(sink)
	}

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
			s.phase++
		}
	}
}

func (s *Source) semiPlanarLoop(sink capture.Sink) func() {
	size := s.cfg.Size
	pool := capture.NewBufferPool(s.cfg.Buffers, yuv.SemiPlanarLen(size.Width, size.Height))
	cam := &capture.PoolCamera{Size: size, Pool: pool}
	adapter := capture.NewPreviewAdapter(sink, s.logger)

	return func() {
		buf, ok := pool.Get()
		if !ok {
			// Every buffer is still out with the consumer.
			s.skipped.Add(1)
			return
		}
		s.fillSemiPlanar(buf)
		s.produced.Add(1)
		adapter.OnPreviewFrame(buf, cam)
	}
}

func (s *Source) planarLoop(sink capture.Sink) (func(), func()) {
	size := s.cfg.Size
	layout := NewPlanarLayout(size)
	pool := capture.NewBufferPool(s.cfg.Buffers, layout.Len())
	latest := &capture.LatestImage{}
	adapter := capture.NewImageAdapter(sink, s.logger)

	if _, ok := sink.PreviewSize(); !ok {
		sink.PreviewSizeChosen(size, s.cfg.Rotation)
	}

	tick := func() {
		backing, ok := pool.Get()
		if !ok {
			s.skipped.Add(1)
			return
		}
		s.fillPlanar(layout, backing)
		s.produced.Add(1)
		latest.Put(capture.NewPlanarImage(layout.Planes(backing), func() error {
			pool.Put(backing)
			return nil
		}))
		adapter.OnImageAvailable(latest)
	}
	return tick, func() { _ = latest.Close() }
}

func (s *Source) luma(x, y int) byte {
	if s.cfg.Pattern == PatternBars {
		return byte(x + y + 4*s.phase)
	}
	return s.cfg.Luma
}

func (s *Source) fillSemiPlanar(buf []byte) {
	w, h := s.cfg.Size.Width, s.cfg.Size.Height
	for y := 0; y < h; y++ {
		row := buf[y*w : y*w+w]
		for x := range row {
			row[x] = s.luma(x, y)
		}
	}
	for i := w * h; i < len(buf); i++ {
		buf[i] = s.cfg.Chroma
	}
}

func (s *Source) fillPlanar(l PlanarLayout, backing []byte) {
	w, h := l.Size.Width, l.Size.Height
	for y := 0; y < h; y++ {
		row := backing[y*l.YStride : y*l.YStride+w]
		for x := range row {
			row[x] = s.luma(x, y)
		}
	}
	chroma := backing[l.chromaOffset():]
	for i := range chroma {
		chroma[i] = s.cfg.Chroma
	}
}

// PlanarLayout describes a padded planar frame whose chroma planes share
// one interleaved V/U region, as many camera HALs emit.
type PlanarLayout struct {
	Size    frame.Size
	YStride int
}

// NewPlanarLayout pads the luma row stride to a multiple of 16.
func NewPlanarLayout(size frame.Size) PlanarLayout {
	return PlanarLayout{Size: size, YStride: (size.Width + 15) &^ 15}
}

func (l PlanarLayout) chromaOffset() int {
	return l.YStride * l.Size.Height
}

func (l PlanarLayout) chromaLen() int {
	rows := (l.Size.Height + 1) / 2
	cols := (l.Size.Width + 1) / 2
	return l.YStride*(rows-1) + 2*cols
}

// Len returns the backing buffer length.
func (l PlanarLayout) Len() int {
	return l.chromaOffset() + l.chromaLen()
}

// Planes slices backing into Y, U and V planes. U and V overlap with a
// pixel stride of 2.
func (l PlanarLayout) Planes(backing []byte) []frame.Plane {
	off := l.chromaOffset()
	n := l.chromaLen()
	return []frame.Plane{
		{Data: backing[:off], RowStride: l.YStride, PixelStride: 1},
		{Data: backing[off+1 : off+n], RowStride: l.YStride, PixelStride: 2},
		{Data: backing[off : off+n-1], RowStride: l.YStride, PixelStride: 2},
	}
}
