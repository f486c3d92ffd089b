package scheduler

import (
	"context"
	"time"

	"github.com/arnegrau/duratask/trigger"
)

// Executor runs a single attempt for one locked ScheduledTask: resolve the
// handler, dispatch its hooks, classify the outcome, compute the next
// RunAt on failure, and persist — applying recurrence afterwards.
type Executor struct {
	registry   *HandlerRegistry
	dispatcher *HookDispatcher
	store      Store
	recurrence *Recurrence
	interval   trigger.IntervalFunc
	logger     Logger
	pending    *PendingSet
}

// NewExecutor wires the collaborators an Executor needs.
func NewExecutor(registry *HandlerRegistry, dispatcher *HookDispatcher, store Store, recurrence *Recurrence, interval trigger.IntervalFunc, logger Logger, pending *PendingSet) *Executor {
	return &Executor{
		registry:   registry,
		dispatcher: dispatcher,
		store:      store,
		recurrence: recurrence,
		interval:   interval,
		logger:     logger,
		pending:    pending,
	}
}

// Run executes one attempt for task, mutating it in place and persisting
// the outcome. It returns ctx.Err() when the attempt was cut short by
// cancellation, so callers can distinguish a cancelled batch from a clean
// one; every other error case is self-contained (recorded on the task,
// never raised to the caller), per spec §7's propagation policy.
//
// persist controls whether finish touches the Store at all: Settings with
// DelayTasks=false run Submit straight through the executor without ever
// writing or deleting a row, per §6.4's "bypass store" contract, and a
// bypass-mode Scheduler may legitimately leave Settings.Store nil.
func (e *Executor) Run(ctx context.Context, task *ScheduledTask, persist bool) error {
	task.Attempts++

	handler, ok := e.registry.Resolve(task.Handler)
	if !ok {
		task.LastError = MissingHandlerError
		e.finish(ctx, task, false, nil, persist)
		return ctx.Err()
	}

	e.pending.add(task.Id, handler)
	methods := e.dispatcher.MethodsFor(handler)
	willFail := JobWillFail(task)

	success, raised := e.dispatcher.Dispatch(ctx, handler, methods, willFail)
	e.pending.remove(task.Id)

	if ctx.Err() != nil {
		// A handler that cooperatively returns on ctx.Done() without an
		// error (the idiom used throughout this codebase) must still
		// count as "the caught exception" for Recurrence's ContinueOnError
		// branch — cancellation is itself the exceptional outcome here.
		task.LastError = CancelledError
		success = false
		raised = ErrCancelled
	} else if raised != nil {
		task.LastError = raised.Error()
		success = false
	}

	if !success {
		task.RunAt = time.Now().UTC().Add(e.interval(task.Attempts))
	}

	e.finish(ctx, task, success, raised, persist)

	return ctx.Err()
}

// finish applies the save rules of spec §4.7 and, if the row survives,
// evaluates recurrence (§4.6). When persist is false the Store is never
// touched — task is mutated in place only, and recurrence (which would
// itself need a Store to save a clone into) does not run: a bypassed
// one-shot attempt has nothing for a clone to extend.
func (e *Executor) finish(ctx context.Context, task *ScheduledTask, success bool, raised error, persist bool) {
	now := time.Now().UTC()
	deleted := false

	if !success && JobWillFail(task) {
		if task.DeleteOnFailure {
			deleted = true
		} else {
			task.FailedAt = &now
		}
	}

	if success {
		if task.DeleteOnSuccess {
			deleted = true
		} else {
			task.SucceededAt = &now
		}
	}

	if !persist {
		return
	}

	if deleted {
		if err := e.store.Delete(ctx, task); err != nil {
			e.logger.Error("failed to delete task %q: %v", task.Id, err)
		}
		return
	}

	task.LockedAt = nil
	task.LockedBy = ""

	if err := e.store.Save(ctx, task); err != nil {
		e.logger.Error("failed to save task %q: %v", task.Id, err)
		return
	}

	e.recurrence.Evaluate(ctx, task, success, raised)
}
