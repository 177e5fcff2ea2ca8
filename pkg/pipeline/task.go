package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/display"
	"github.com/teslashibe/go-framegate/pkg/frame"
)

// task processes one admitted frame on the executor.
type task struct {
	p       *Pipeline
	sess    *session
	seq     uint64
	release *Release
	logger  *slog.Logger
}

// run converts, classifies and publishes the staged frame. The release
// runs on every exit path, including a panicking classifier or display.
func (t *task) run(ctx context.Context) {
	defer t.release.Invoke()
	defer func() {
		if r := recover(); r != nil {
			t.p.stats.failed.Add(1)
			t.logger.Error("processing task panicked", "panic", r)
		}
	}()

	g := t.sess.geometry.Load()
	if g == nil {
		return
	}
	orientation := g.rotation - int(t.p.screenRotation.Load())

	start := time.Now()
	pixels := t.p.buffers.Pixels()
	results, err := t.p.classifier.Classify(ctx, classifier.Input{
		Pixels:      pixels,
		Width:       g.size.Width,
		Height:      g.size.Height,
		Orientation: orientation,
	})
	latency := time.Since(start)
	if err != nil {
		t.p.stats.failed.Add(1)
		t.logger.Error("inference failed", "error", err, "latency", latency)
		return
	}
	t.p.stats.processed.Add(1)
	t.p.stats.lastLatency.Store(int64(latency))
	t.logger.Debug("frame processed", "results", len(results), "latency", latency)

	cfg := t.p.settings.Config()
	t.p.display.Publish(display.Update{
		Session:          t.sess.id,
		Frame:            t.seq,
		Time:             time.Now(),
		Results:          results,
		Top:              display.TopEntries(results),
		FrameSize:        display.FormatSize(g.size),
		CropSize:         display.FormatSize(t.p.classifier.InputSize()),
		CameraResolution: display.FormatSize(oriented(g.size, orientation)),
		Rotation:         strconv.Itoa(orientation),
		Inference:        display.FormatLatency(latency),
		Latency:          latency,
		Device:           cfg.Device,
		Threads:          t.p.settings.ThreadsLabel(),
	})
}

// oriented swaps width and height for quarter-turn orientations.
func oriented(s frame.Size, deg int) frame.Size {
	if ((deg%360)+360)%180 == 90 {
		return frame.Size{Width: s.Height, Height: s.Width}
	}
	return s
}
