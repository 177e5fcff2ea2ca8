// Package gstreamer captures frames from a GStreamer pipeline ending in an
// appsink and feeds them to the event-driven capture adapter.
package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/teslashibe/go-framegate/pkg/capture"
	"github.com/teslashibe/go-framegate/pkg/frame"
)

// ErrEndOfStream is returned by Run when the pipeline reaches EOS.
var ErrEndOfStream = errors.New("gstreamer: end of stream")

// Config configures a GStreamer source.
type Config struct {
	// Device is a V4L2 device path. Empty uses videotestsrc.
	Device string
	// Pattern is the videotestsrc pattern number.
	Pattern  int
	Size     frame.Size
	FPS      int
	Rotation int
}

// DefaultConfig returns a 640x480 test pattern at 30 fps.
func DefaultConfig() Config {
	return Config{
		Size: frame.Size{Width: 640, Height: 480},
		FPS:  30,
	}
}

// Source runs one GStreamer pipeline per Run.
type Source struct {
	cfg    Config
	logger *slog.Logger

	produced atomic.Uint64
	skipped  atomic.Uint64
}

// New creates a source.
func New(cfg Config, logger *slog.Logger) *Source {
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
	return &Source{cfg: cfg, logger: logger}
}

// Name returns "gstreamer".
func (s *Source) Name() string {
	return "gstreamer"
}

// Stats returns frame counters.
func (s *Source) Stats() capture.SourceStats {
	return capture.SourceStats{
		Produced: s.produced.Load(),
		Skipped:  s.skipped.Load(),
	}
}

// Caps returns the appsink caps string.
func (s *Source) Caps() string {
	return fmt.Sprintf("video/x-raw,format=I420,width=%d,height=%d,framerate=%d/1",
		s.cfg.Size.Width, s.cfg.Size.Height, s.cfg.FPS)
}

type elements struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
}

// build creates src ! videoconvert ! videoscale ! capsfilter ! appsink.
// The pipeline is left in the NULL state.
func (s *Source) build() (*elements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	var src *gst.Element
	if s.cfg.Device != "" {
		src, err = gst.NewElement("v4l2src")
		if err != nil {
			return nil, fmt.Errorf("failed to create v4l2src: %w", err)
		}
		src.SetProperty("device", s.cfg.Device)
	} else {
		src, err = gst.NewElement("videotestsrc")
		if err != nil {
			return nil, fmt.Errorf("failed to create videotestsrc: %w", err)
		}
		src.SetProperty("is-live", true)
		src.SetProperty("pattern", s.cfg.Pattern)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(s.Caps()))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link elements: %w", err)
	}
	return &elements{pipeline: pipeline, sink: sink}, nil
}

// Run plays the pipeline until ctx ends, EOS or a pipeline error.
func (s *Source) Run(ctx context.Context, sink capture.Sink) error {
	el, err := s.build()
	if err != nil {
		return err
	}

	layout := NewI420Layout(s.cfg.Size)
	latest := &capture.LatestImage{}
	defer latest.Close()
	adapter := capture.NewImageAdapter(sink, s.logger)

	if _, ok := sink.PreviewSize(); !ok {
		sink.PreviewSizeChosen(s.cfg.Size, s.cfg.Rotation)
	}

	el.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(appsink *app.Sink) gst.FlowReturn {
			return s.onSample(appsink, layout, latest, adapter)
		},
	})

	if err := el.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	defer func() {
		if err := el.pipeline.SetState(gst.StateNull); err != nil {
			s.logger.Warn("failed to stop pipeline", "error", err)
		}
	}()

	s.logger.Info("gstreamer source started",
		"device", s.cfg.Device,
		"caps", s.Caps(),
	)
	return s.monitor(ctx, el.pipeline)
}

// onSample maps the buffer and hands it over as a planar image. The
// buffer stays mapped until the pipeline releases the image.
func (s *Source) onSample(appsink *app.Sink, layout I420Layout, latest *capture.LatestImage, adapter *capture.ImageAdapter) gst.FlowReturn {
	sample := appsink.PullSample()
	if sample == nil {
		s.logger.Warn("gstreamer: failed to pull sample, skipping frame")
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		s.logger.Warn("gstreamer: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	data := buffer.Map(gst.MapRead).Bytes()
	if len(data) < layout.Len() {
		buffer.Unmap()
		s.skipped.Add(1)
		s.logger.Warn("gstreamer: short buffer", "len", len(data), "want", layout.Len())
		return gst.FlowOK
	}

	s.produced.Add(1)
	latest.Put(capture.NewPlanarImage(layout.Planes(data), func() error {
		buffer.Unmap()
		runtime.KeepAlive(sample)
		return nil
	}))
	adapter.OnImageAvailable(latest)
	return gst.FlowOK
}

func (s *Source) monitor(ctx context.Context, pipeline *gst.Pipeline) error {
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			s.logger.Info("gstreamer: end of stream", "produced", s.produced.Load())
			return ErrEndOfStream
		case gst.MessageError:
			gerr := msg.ParseError()
			s.logger.Error("gstreamer: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			return fmt.Errorf("gstreamer: pipeline error: %s", gerr.Error())
		}
	}
}
