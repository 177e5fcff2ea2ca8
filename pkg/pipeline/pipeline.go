// Package pipeline delivers camera frames to the classifier one at a time.
//
// Capture callbacks call Admit for every frame. At most one frame is in
// flight; frames arriving while one is being processed are dropped and
// their capture resource returned immediately. An admitted frame is staged
// into the pipeline's buffers and handed to a single background executor,
// which converts, classifies and publishes it before releasing the capture
// resource exactly once.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/display"
	"github.com/teslashibe/go-framegate/pkg/frame"
)

// DefaultQueueDepth bounds the executor queue. The gate keeps at most one
// frame task queued; the rest is room for reconfigure tasks.
const DefaultQueueDepth = 4

// admissionGrace bounds how long StopSession waits for frames admitted
// just before stopping.
const admissionGrace = time.Second

// Config configures a Pipeline.
type Config struct {
	Classifier classifier.Classifier
	Display    display.Display
	Settings   *classifier.Settings
	Logger     *slog.Logger

	// Buffers overrides the staging buffers, mostly to install counting
	// transforms in tests.
	Buffers *frame.BufferSet

	QueueDepth int
}

// SessionConfig is captured when a session starts.
type SessionConfig struct {
	// ScreenRotation is the display rotation in degrees.
	ScreenRotation int
}

type geometry struct {
	size     frame.Size
	rotation int
}

type session struct {
	id   string
	exec *executor
	seq  atomic.Uint64

	mu       sync.Mutex
	geometry atomic.Pointer[geometry]
	stopping atomic.Bool

	// admissions counts frames admitted but not yet released. Add happens
	// under mu while not stopping, so it never races the final Wait.
	admissions sync.WaitGroup
}

// awaitAdmissions waits until every admitted frame is released, ctx ends
// or limit passes. A zero limit waits on ctx alone.
func (s *session) awaitAdmissions(ctx context.Context, limit time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.admissions.Wait()
		close(done)
	}()

	var expired <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrFramesOutstanding
	}
}

// Pipeline owns the gate, the staging buffers and the inference executor.
type Pipeline struct {
	classifier classifier.Classifier
	display    display.Display
	settings   *classifier.Settings
	buffers    *frame.BufferSet
	logger     *slog.Logger
	depth      int

	gate  Gate
	stats counters

	lifecycle      sync.Mutex
	current        atomic.Pointer[session]
	previous       *session
	screenRotation atomic.Int32
}

// New creates a pipeline. No session runs until StartSession.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Classifier == nil {
		return nil, ErrNoClassifier
	}
	if cfg.Display == nil {
		cfg.Display = display.Discard
	}
	if cfg.Settings == nil {
		cfg.Settings = classifier.NewSettings(classifier.DefaultConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Buffers == nil {
		cfg.Buffers = frame.NewBufferSet()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}

	p := &Pipeline{
		classifier: cfg.Classifier,
		display:    cfg.Display,
		settings:   cfg.Settings,
		buffers:    cfg.Buffers,
		logger:     cfg.Logger,
		depth:      cfg.QueueDepth,
	}
	p.settings.OnChange(p.settingsChanged)
	return p, nil
}

// Settings returns the classifier settings the pipeline follows.
func (p *Pipeline) Settings() *classifier.Settings {
	return p.settings
}

// StartSession creates the executor and begins accepting frames. Frames
// still held from the previous session are waited for first, bounded by ctx.
func (p *Pipeline) StartSession(ctx context.Context, cfg SessionConfig) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.current.Load() != nil {
		return ErrSessionActive
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if prev := p.previous; prev != nil {
		if err := prev.awaitAdmissions(ctx, 0); err != nil {
			return err
		}
		p.previous = nil
	}
	p.screenRotation.Store(int32(cfg.ScreenRotation))

	sess := &session{id: uuid.NewString()}
	sess.exec = newExecutor("inference", p.depth, p.logger.With("session", sess.id))
	p.current.Store(sess)

	p.logger.Info("session started", "session", sess.id, "screen_rotation", cfg.ScreenRotation)
	return nil
}

// StopSession stops accepting frames, drains queued work and joins the
// executor. Queued frame tasks still run and release their resources. If
// ctx ends first the in-flight classification is cancelled and StopSession
// still waits for it before returning ctx's error. A frame admitted but not
// yet dispatched is waited for briefly; if it is still held the gate stays
// closed and the next StartSession waits for it.
func (p *Pipeline) StopSession(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	sess := p.current.Load()
	if sess == nil {
		return ErrNoSession
	}

	sess.mu.Lock()
	sess.stopping.Store(true)
	sess.mu.Unlock()

	err := sess.exec.shutdown(ctx)

	// A capture callback admitted just before stopping either aborts or
	// fails to post; both release promptly.
	if werr := sess.awaitAdmissions(ctx, admissionGrace); werr != nil {
		p.logger.Warn("admitted frame not released at session stop", "session", sess.id, "error", werr)
		if err == nil {
			err = werr
		}
	}

	p.current.Store(nil)
	p.previous = sess
	st := p.stats.snapshot()
	p.logger.Info("session stopped",
		"session", sess.id,
		"processed", st.Processed,
		"dropped", st.Dropped,
		"failed", st.Failed,
	)
	return err
}

// Close stops the active session, if any.
func (p *Pipeline) Close(ctx context.Context) error {
	if err := p.StopSession(ctx); err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	return nil
}

// Session returns the active session ID, or "".
func (p *Pipeline) Session() string {
	if sess := p.current.Load(); sess != nil {
		return sess.id
	}
	return ""
}

// SetScreenRotation updates the cached display rotation in degrees.
func (p *Pipeline) SetScreenRotation(deg int) {
	p.screenRotation.Store(int32(deg))
}

// PreviewSize returns the session's preview size once it is known.
func (p *Pipeline) PreviewSize() (frame.Size, bool) {
	sess := p.current.Load()
	if sess == nil {
		return frame.Size{}, false
	}
	g := sess.geometry.Load()
	if g == nil {
		return frame.Size{}, false
	}
	return g.size, true
}

// SensorOrientation returns the chosen rotation minus the screen rotation.
func (p *Pipeline) SensorOrientation() int {
	sess := p.current.Load()
	if sess == nil {
		return 0
	}
	g := sess.geometry.Load()
	if g == nil {
		return 0
	}
	return g.rotation - int(p.screenRotation.Load())
}

// PreviewSizeChosen records the session geometry and schedules the
// classifier build on the executor. It takes effect once per session; a
// repeat with the same size is a no-op and a different size is ignored.
func (p *Pipeline) PreviewSizeChosen(size frame.Size, rotation int) {
	sess := p.current.Load()
	if sess == nil {
		p.logger.Warn("preview size chosen without a session", "size", size)
		return
	}
	if size.Empty() {
		p.logger.Warn("ignoring empty preview size", "size", size)
		return
	}

	sess.mu.Lock()
	if sess.stopping.Load() {
		sess.mu.Unlock()
		return
	}
	if g := sess.geometry.Load(); g != nil {
		sess.mu.Unlock()
		if g.size != size {
			p.logger.Warn("ignoring preview size change within session", "size", g.size, "requested", size)
		}
		return
	}
	defer sess.mu.Unlock()

	p.logger.Info("initializing at size",
		"session", sess.id,
		"size", size.String(),
		"camera_rotation", rotation,
		"sensor_orientation", rotation-int(p.screenRotation.Load()),
	)
	p.buffers.Reset(size)
	// The rebuild is queued ahead of any frame task: frames are refused
	// until the geometry below is published.
	p.reconfigure(sess)
	sess.geometry.Store(&geometry{size: size, rotation: rotation})
}

// settingsChanged rebuilds the classifier when a session has geometry.
func (p *Pipeline) settingsChanged(cfg classifier.Config) {
	sess := p.current.Load()
	if sess == nil || sess.geometry.Load() == nil {
		return
	}
	p.logger.Info("classifier settings changed", "device", cfg.Device, "threads", cfg.Threads)
	p.reconfigure(sess)
}

// reconfigure posts a classifier rebuild. Settings are read when the task
// runs so back-to-back changes converge on the latest values.
func (p *Pipeline) reconfigure(sess *session) {
	ok := sess.exec.post(func(ctx context.Context) {
		cfg := p.settings.Config()
		p.logger.Debug("creating classifier", "device", cfg.Device, "threads", cfg.Threads)
		if err := p.classifier.Reconfigure(ctx, cfg.Device, cfg.Threads); err != nil {
			p.logger.Error("failed to create classifier", "device", cfg.Device, "threads", cfg.Threads, "error", err)
			return
		}
		p.logger.Info("classifier ready",
			"device", cfg.Device,
			"threads", cfg.Threads,
			"input", p.classifier.InputSize().String(),
		)
	})
	if !ok {
		p.logger.Warn("could not schedule classifier rebuild", "session", sess.id)
	}
}

// Admit asks the gate for a slot. It returns false, counting a drop, when
// no session accepts frames, the geometry is unknown or a frame is already
// in flight. The caller must then give the capture resource back itself.
func (p *Pipeline) Admit() (*Admission, bool) {
	sess := p.current.Load()
	if sess == nil || sess.stopping.Load() || sess.geometry.Load() == nil {
		p.stats.dropped.Add(1)
		return nil, false
	}

	sess.mu.Lock()
	if sess.stopping.Load() || !p.gate.TryAdmit() {
		sess.mu.Unlock()
		p.stats.dropped.Add(1)
		return nil, false
	}
	sess.admissions.Add(1)
	sess.mu.Unlock()

	p.stats.admitted.Add(1)
	return &Admission{p: p, sess: sess, seq: sess.seq.Add(1)}, true
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	st := p.stats.snapshot()
	st.InFlight = p.gate.InFlight()
	if sess := p.current.Load(); sess != nil {
		st.Session = sess.id
		st.Active = !sess.stopping.Load()
	}
	return st
}

func (p *Pipeline) released(err error) {
	p.stats.released.Add(1)
	if err != nil {
		p.stats.releaseErrors.Add(1)
	}
}

// Admission is one admitted frame. The capture callback stages the frame
// and then calls exactly one of Dispatch or Abort.
type Admission struct {
	p    *Pipeline
	sess *session
	seq  uint64
	done bool
}

// Seq returns the frame's sequence number within the session.
func (a *Admission) Seq() uint64 {
	return a.seq
}

// StagePlanar copies three planes into pipeline storage.
func (a *Admission) StagePlanar(planes [3]frame.Plane) {
	a.p.buffers.StagePlanar(planes)
}

// StageSemiPlanar references an NV21 buffer without copying.
func (a *Admission) StageSemiPlanar(data []byte) {
	a.p.buffers.StageSemiPlanar(data)
}

// Dispatch hands the staged frame to the executor. free returns the capture
// resource and runs exactly once after processing. If the task cannot be
// posted, free runs before Dispatch returns.
func (a *Admission) Dispatch(free func() error) {
	if a.done {
		return
	}
	a.done = true

	logger := a.p.logger.With("session", a.sess.id, "frame", a.seq)
	rel := newRelease(&a.p.gate, free, logger, a.released)
	t := &task{p: a.p, sess: a.sess, seq: a.seq, release: rel, logger: logger}
	if !a.sess.exec.post(t.run) {
		logger.Debug("executor not accepting work, releasing frame")
		a.p.stats.dropped.Add(1)
		rel.Invoke()
	}
}

// Abort releases the frame without processing it.
func (a *Admission) Abort(free func() error) {
	if a.done {
		return
	}
	a.done = true
	a.p.stats.dropped.Add(1)
	newRelease(&a.p.gate, free, a.p.logger.With("session", a.sess.id, "frame", a.seq), a.released).Invoke()
}

func (a *Admission) released(err error) {
	a.p.released(err)
	a.sess.admissions.Done()
}
