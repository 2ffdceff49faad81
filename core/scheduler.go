package core

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// TaskFunc is a unit of work run by the scheduler. Implementations must
// honour ctx cancellation at suspension points (sends, receives, sleeps).
type TaskFunc func(ctx context.Context) error

// TaskHandle controls one spawned task. Cancelling the handle stops the
// task at its next suspension point; Done closes when the task returns.
type TaskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    atomic.Value // error
}

// Cancel requests the task to stop. Safe to call more than once.
func (h *TaskHandle) Cancel() {
	h.cancel()
}

// Done closes when the task has returned.
func (h *TaskHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the task's result after Done closes, nil on clean exit.
func (h *TaskHandle) Err() error {
	if v := h.err.Load(); v != nil {
		if e, ok := v.(error); ok {
			return e
		}
	}
	return nil
}

// Scheduler runs cooperative tasks on a bounded worker pool. While every
// worker is busy, Spawn blocks until a slot frees. Shutdown cancels the shared
// context and waits for every task to unwind.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	gctx   context.Context

	spawned atomic.Int64
	active  atomic.Int64
}

// NewScheduler creates a scheduler with the given worker limit. The parent
// context bounds every task's lifetime.
func NewScheduler(parent context.Context, workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		group:  group,
		gctx:   gctx,
	}
}

// Spawn starts a task on the pool and returns its handle, blocking first
// while all workers are busy. The task's
// context is cancelled either through the handle or at scheduler shutdown,
// whichever comes first.
func (s *Scheduler) Spawn(task TaskFunc) *TaskHandle {
	taskCtx, taskCancel := context.WithCancel(s.gctx)
	handle := &TaskHandle{
		cancel: taskCancel,
		done:   make(chan struct{}),
	}

	s.spawned.Add(1)
	s.group.Go(func() error {
		s.active.Add(1)
		defer s.active.Add(-1)
		defer close(handle.done)
		defer taskCancel()

		err := task(taskCtx)
		if err != nil {
			handle.err.Store(err)
		}
		// Task errors are reported through the handle, not the group;
		// one failing unit must not tear down its peers.
		return nil
	})
	return handle
}

// Active reports how many tasks are currently running.
func (s *Scheduler) Active() int64 {
	return s.active.Load()
}

// Spawned reports how many tasks have ever been submitted to Spawn.
func (s *Scheduler) Spawned() int64 {
	return s.spawned.Load()
}

// Shutdown cancels all tasks and waits for them to unwind.
func (s *Scheduler) Shutdown() {
	s.cancel()
	_ = s.group.Wait()
}

// Wait blocks until every spawned task has returned, without cancelling.
func (s *Scheduler) Wait() {
	_ = s.group.Wait()
}
