// Package pool provides a call-scoped background task pool.
//
// The session orchestrator launches fire-and-forget work (transcript saves,
// contact extraction, status updates) through a TaskPool so the live audio
// turn loop is never blocked by store I/O. On teardown the pool's context is
// cancelled and the remaining tasks are drained, not abandoned.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("task pool is closed")
	// ErrPoolFull is returned when the pending-task limit is reached.
	ErrPoolFull = errors.New("task pool is full")
)

// Task is a unit of background work. The context is cancelled when the pool
// closes.
type Task func(ctx context.Context) error

// TaskPool runs background tasks concurrently, bounded by maxPending.
type TaskPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger

	maxPending int64
	pending    atomic.Int64
	closed     atomic.Bool

	// 统计
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New creates a TaskPool whose tasks inherit from parent. maxPending <= 0
// means 64.
func New(parent context.Context, maxPending int, logger *zap.Logger) *TaskPool {
	if maxPending <= 0 {
		maxPending = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &TaskPool{
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With(zap.String("component", "task_pool")),
		maxPending: int64(maxPending),
	}
}

// Go submits a named fire-and-forget task. Errors are logged, never
// propagated: background persistence is best-effort.
func (p *TaskPool) Go(name string, task Task) error {
	if p.closed.Load() {
		p.rejected.Add(1)
		return ErrPoolClosed
	}
	if p.pending.Add(1) > p.maxPending {
		p.pending.Add(-1)
		p.rejected.Add(1)
		return ErrPoolFull
	}

	p.submitted.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.failed.Add(1)
				p.logger.Error("background task panic",
					zap.String("task", name), zap.Any("panic", r))
			}
		}()

		if err := task(p.ctx); err != nil {
			p.failed.Add(1)
			if !errors.Is(err, context.Canceled) {
				p.logger.Warn("background task failed",
					zap.String("task", name), zap.Error(err))
			}
			return
		}
		p.completed.Add(1)
	}()
	return nil
}

// Close cancels all in-flight tasks and waits for them to finish, up to
// timeout. Returns false when the drain timed out.
func (p *TaskPool) Close(timeout time.Duration) bool {
	if !p.closed.CompareAndSwap(false, true) {
		return true
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		p.logger.Warn("task pool drain timed out",
			zap.Int64("pending", p.pending.Load()))
		return false
	}
}

// Stats returns submitted/completed/failed/rejected counts.
func (p *TaskPool) Stats() (submitted, completed, failed, rejected int64) {
	return p.submitted.Load(), p.completed.Load(), p.failed.Load(), p.rejected.Load()
}
