package scheduler

import (
	"context"
	"sync"
	"time"
)

// Scheduler is the engine's lifecycle control surface (component C8):
// Start/Stop/Dispose, cancellation propagation, and graceful-halt hooks.
// It owns and wires every other component.
type Scheduler struct {
	settings Settings

	registry   *HandlerRegistry
	dispatcher *HookDispatcher
	recurrence *Recurrence
	pending    *PendingSet
	executor   *Executor

	mu     sync.Mutex
	pool   *PriorityWorkerPool
	poller *Poller
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a Scheduler from settings. The worker pool and Poller are not
// created until Start.
func New(settings Settings) *Scheduler {
	settings = settings.withDefaults()

	registry := NewHandlerRegistry(settings.TypeResolver)
	dispatcher := NewHookDispatcher()
	recurrence := NewRecurrence(settings.Store, settings.Oracle, settings.Logger)
	pending := NewPendingSet()
	executor := NewExecutor(registry, dispatcher, settings.Store, recurrence, settings.IntervalFunction, settings.Logger, pending)

	return &Scheduler{
		settings:   settings,
		registry:   registry,
		dispatcher: dispatcher,
		recurrence: recurrence,
		pending:    pending,
		executor:   executor,
	}
}

// Start lazily instantiates the worker pool and begins Poller cycles. If
// immediate is true, one poll tick runs synchronously before Start
// returns. The root context it derives from ctx is cancelled by
// Stop/Dispose.
func (s *Scheduler) Start(ctx context.Context, immediate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	rootCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.pool = NewPriorityWorkerPool(rootCtx, s.settings.Concurrency)
	s.poller = NewPoller(s.settings.Store, s.pool, s.executor, s.settings.SleepInterval, s.settings.ReadAhead, s.settings.WorkerID, s.settings.Logger)

	if immediate {
		s.poller.Tick(rootCtx)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.poller.Run(rootCtx)
	}()
}

// Stop halts any handler currently occupying a worker slot (invoking its
// Halt hook in parallel), cancels the root token, and waits for
// outstanding work to unwind.
func (s *Scheduler) Stop(immediate bool) {
	s.mu.Lock()
	cancel := s.cancel
	pool := s.pool
	s.cancel = nil
	s.pool = nil
	s.poller = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	s.pending.haltAll(context.Background(), immediate)

	cancel()
	if pool != nil {
		pool.Stop()
	}
	s.wg.Wait()
}

// Dispose is equivalent to Stop(true).
func (s *Scheduler) Dispose() {
	s.Stop(true)
}

// Submit hands a new task to the engine. If Settings.DelayTasks is false,
// it runs the attempt synchronously and bypasses the Store entirely — the
// row is never written, regardless of DeleteOnSuccess/DeleteOnFailure, and
// Settings.Store may be left nil for a pure bypass-mode Scheduler.
// Otherwise Submit only persists task for the Poller to pick up on its
// next tick.
//
// Construction of the task itself (serializing the handler reference,
// applying provisioning defaults) is the producer API's job, out of scope
// here; Submit takes an already-built *ScheduledTask.
func (s *Scheduler) Submit(ctx context.Context, task *ScheduledTask) error {
	if !s.settings.DelayTasks {
		return s.executor.Run(ctx, task, false)
	}

	if err := s.settings.Store.Save(ctx, task); err != nil {
		return err
	}

	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller != nil {
		poller.Wake()
	}
	return nil
}

// NewTask builds a ScheduledTask for handler, due at runAt, with the
// provisioning defaults from Settings applied.
func (s *Scheduler) NewTask(handler HandlerReference, runAt time.Time) *ScheduledTask {
	return s.settings.newTask(handler, runAt)
}

// Registry exposes the HandlerRegistry so callers can pre-warm it, e.g. in
// tests.
func (s *Scheduler) Registry() *HandlerRegistry { return s.registry }
