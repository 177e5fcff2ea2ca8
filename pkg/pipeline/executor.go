package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// executor runs posted work strictly in order on one goroutine.
type executor struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	work   chan func(context.Context)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newExecutor(name string, depth int, logger *slog.Logger) *executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &executor{
		name:   name,
		logger: logger,
		work:   make(chan func(context.Context), depth),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *executor) loop() {
	defer close(e.done)
	e.logger.Debug("executor started", "executor", e.name)
	for fn := range e.work {
		fn(e.ctx)
	}
	e.logger.Debug("executor stopped", "executor", e.name)
}

// post queues fn without blocking. It returns false when the executor is
// shutting down or its queue is full.
func (e *executor) post(fn func(context.Context)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	select {
	case e.work <- fn:
		return true
	default:
		return false
	}
}

// shutdown rejects new work, then waits until queued work has drained and
// the goroutine has exited. If ctx ends first the work context is
// cancelled so a cooperative classifier can return early, and shutdown
// still waits for the goroutine before returning ctx's error.
func (e *executor) shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.work)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-e.done
		return ctx.Err()
	}
}
