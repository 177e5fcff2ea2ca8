package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-framegate/pkg/frame"
)

// Image is a capture-owned planar image. Close returns it to its producer.
type Image interface {
	Planes() []frame.Plane
	Close() error
}

// ImageReader yields the most recent image, or nil when none is pending.
type ImageReader interface {
	AcquireLatestImage() (Image, error)
}

// ImageAdapter handles event-driven planar capture.
type ImageAdapter struct {
	sink   Sink
	logger *slog.Logger
	stats  adapterCounters
}

// NewImageAdapter creates an adapter feeding sink.
func NewImageAdapter(sink Sink, logger *slog.Logger) *ImageAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageAdapter{sink: sink, logger: logger}
}

// OnImageAvailable is the image-available callback. It never blocks on
// inference: a refused image is closed before returning.
func (a *ImageAdapter) OnImageAvailable(reader ImageReader) {
	if _, ok := a.sink.PreviewSize(); !ok {
		return
	}

	img, err := reader.AcquireLatestImage()
	if err != nil {
		a.stats.errors.Add(1)
		a.logger.Warn("failed to acquire image", "error", err)
		return
	}
	if img == nil {
		return
	}
	a.stats.frames.Add(1)

	adm, ok := a.sink.Admit()
	if !ok {
		a.stats.dropped.Add(1)
		if err := img.Close(); err != nil {
			a.logger.Warn("failed to close dropped image", "error", err)
		}
		return
	}

	planes := img.Planes()
	if len(planes) != 3 {
		a.stats.errors.Add(1)
		a.logger.Warn("unexpected plane count", "planes", len(planes))
		adm.Abort(img.Close)
		return
	}

	a.stats.admitted.Add(1)
	adm.StagePlanar([3]frame.Plane{planes[0], planes[1], planes[2]})
	adm.Dispatch(img.Close)
}

// Stats returns callback counters.
func (a *ImageAdapter) Stats() AdapterStats {
	return a.stats.snapshot()
}

// LatestImage is an ImageReader holding a single pending image. Putting a
// new image closes the one it replaces, so a slow consumer only ever sees
// the newest frame.
type LatestImage struct {
	mu      sync.Mutex
	pending Image
	closed  bool

	replaced atomic.Uint64
}

// Put makes img the pending image and closes any image it displaces.
// After Close, img is closed immediately.
func (l *LatestImage) Put(img Image) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = img.Close()
		return
	}
	old := l.pending
	l.pending = img
	l.mu.Unlock()

	if old != nil {
		l.replaced.Add(1)
		_ = old.Close()
	}
}

// AcquireLatestImage takes the pending image, or returns nil.
func (l *LatestImage) AcquireLatestImage() (Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	img := l.pending
	l.pending = nil
	return img, nil
}

// Replaced returns how many pending images were displaced before use.
func (l *LatestImage) Replaced() uint64 {
	return l.replaced.Load()
}

// Close closes the pending image and rejects further reads.
func (l *LatestImage) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	old := l.pending
	l.pending = nil
	l.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// PlanarImage is an Image over caller-owned planes with a close hook that
// runs at most once.
type PlanarImage struct {
	planes  []frame.Plane
	once    sync.Once
	release func() error
	err     error
}

// NewPlanarImage wraps planes. release may be nil.
func NewPlanarImage(planes []frame.Plane, release func() error) *PlanarImage {
	return &PlanarImage{planes: planes, release: release}
}

// Planes returns the wrapped planes.
func (i *PlanarImage) Planes() []frame.Plane {
	return i.planes
}

// Close runs the release hook once.
func (i *PlanarImage) Close() error {
	i.once.Do(func() {
		if i.release != nil {
			i.err = i.release()
		}
	})
	return i.err
}
