package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-framegate/pkg/display"
)

// DefaultRecorderQueue is the recorder's queue depth.
const DefaultRecorderQueue = 64

// Writer persists one update.
type Writer interface {
	RecordResult(ctx context.Context, u display.Update) error
}

// Recorder is a display.Display that writes updates asynchronously.
// Publish never blocks the pipeline; updates are dropped when the queue
// is full.
type Recorder struct {
	w      Writer
	queue  chan display.Update
	logger *slog.Logger

	// FlushTimeout bounds writing queued updates once Run's context ends.
	FlushTimeout time.Duration

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

var _ display.Display = (*Recorder)(nil)

// NewRecorder creates a recorder writing to w.
func NewRecorder(w Writer, depth int, logger *slog.Logger) *Recorder {
	if depth <= 0 {
		depth = DefaultRecorderQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		w:            w,
		queue:        make(chan display.Update, depth),
		logger:       logger,
		FlushTimeout: 2 * time.Second,
	}
}

// Publish queues u for writing.
func (r *Recorder) Publish(u display.Update) {
	select {
	case r.queue <- u:
	default:
		r.dropped.Add(1)
		r.logger.Debug("recorder queue full, dropping result", "frame", u.Frame)
	}
}

// Run writes queued updates until ctx is cancelled, then flushes what is
// left within FlushTimeout.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case u := <-r.queue:
			r.write(ctx, u)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), r.FlushTimeout)
	defer cancel()
	for {
		select {
		case u := <-r.queue:
			r.write(ctx, u)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, u display.Update) {
	if err := r.w.RecordResult(ctx, u); err != nil {
		r.failed.Add(1)
		r.logger.Warn("failed to record result", "session", u.Session, "frame", u.Frame, "error", err)
		return
	}
	r.recorded.Add(1)
}

// RecorderStats counts recorder outcomes.
type RecorderStats struct {
	Recorded uint64 `json:"recorded"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
}

// Stats returns recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}
