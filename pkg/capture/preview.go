package capture

import (
	"log/slog"

	"github.com/teslashibe/go-framegate/pkg/frame"
)

// LegacyRotation is the rotation push capture announces with its size.
const LegacyRotation = 90

// PreviewCamera is a push-capture camera with a callback buffer pool.
type PreviewCamera interface {
	PreviewSize() (frame.Size, error)
	AddCallbackBuffer(buf []byte)
}

// PreviewAdapter handles push capture of NV21 buffers.
type PreviewAdapter struct {
	sink   Sink
	logger *slog.Logger
	stats  adapterCounters
}

// NewPreviewAdapter creates an adapter feeding sink.
func NewPreviewAdapter(sink Sink, logger *slog.Logger) *PreviewAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreviewAdapter{sink: sink, logger: logger}
}

// OnPreviewFrame is the preview callback. The first frame of a session
// reads the preview size from cam and announces it. Refused buffers go
// straight back to cam.
func (a *PreviewAdapter) OnPreviewFrame(data []byte, cam PreviewCamera) {
	a.stats.frames.Add(1)

	if _, ok := a.sink.PreviewSize(); !ok {
		size, err := cam.PreviewSize()
		if err != nil {
			a.stats.errors.Add(1)
			a.logger.Error("failed to read preview size", "error", err)
			cam.AddCallbackBuffer(data)
			return
		}
		a.sink.PreviewSizeChosen(size, LegacyRotation)
	}

	adm, ok := a.sink.Admit()
	if !ok {
		a.stats.dropped.Add(1)
		a.logger.Debug("dropping frame")
		cam.AddCallbackBuffer(data)
		return
	}

	a.stats.admitted.Add(1)
	adm.StageSemiPlanar(data)
	adm.Dispatch(func() error {
		cam.AddCallbackBuffer(data)
		return nil
	})
}

// Stats returns callback counters.
func (a *PreviewAdapter) Stats() AdapterStats {
	return a.stats.snapshot()
}
