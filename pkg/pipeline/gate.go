package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Gate admits at most one frame at a time. A refused frame is dropped by
// the caller, never queued.
type Gate struct {
	inFlight atomic.Bool
}

// TryAdmit marks a frame in flight and returns true only if none was.
func (g *Gate) TryAdmit() bool {
	return g.inFlight.CompareAndSwap(false, true)
}

// Release clears the in-flight flag. Pair each call with one successful TryAdmit.
func (g *Gate) Release() {
	g.inFlight.Store(false)
}

// InFlight reports whether a frame is currently admitted.
func (g *Gate) InFlight() bool {
	return g.inFlight.Load()
}

// Release frees an admitted frame's capture resource and clears the gate.
// Invoke runs at most once no matter how many exit paths call it.
type Release struct {
	once    sync.Once
	free    func() error
	gate    *Gate
	logger  *slog.Logger
	invoked atomic.Bool
	onDone  func(err error)
}

func newRelease(gate *Gate, free func() error, logger *slog.Logger, onDone func(error)) *Release {
	return &Release{gate: gate, free: free, logger: logger, onDone: onDone}
}

// Invoke frees the resource and clears the gate. A failing or panicking
// free is logged and the gate is still cleared.
func (r *Release) Invoke() {
	r.once.Do(func() {
		var err error
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("frame release panicked", "panic", p)
			}
			r.invoked.Store(true)
			r.gate.Release()
			if r.onDone != nil {
				r.onDone(err)
			}
		}()
		if r.free != nil {
			if err = r.free(); err != nil {
				r.logger.Warn("failed to release frame", "error", err)
			}
		}
	})
}

// Invoked reports whether Invoke has run.
func (r *Release) Invoked() bool {
	return r.invoked.Load()
}
