package scheduler

import (
	"context"

	"github.com/arnegrau/duratask/trigger"
)

// Recurrence implements spec §4.6: on the terminal outcome of one attempt,
// decide whether the task should repeat and, if so, clone it forward to
// its next occurrence. Cloning is additive — the original row is left in
// whatever terminal state the save rules (§4.7) put it in.
type Recurrence struct {
	store  Store
	oracle trigger.OccurrenceOracle
	logger Logger
}

// NewRecurrence wires the collaborators a Recurrence needs.
func NewRecurrence(store Store, oracle trigger.OccurrenceOracle, logger Logger) *Recurrence {
	return &Recurrence{store: store, oracle: oracle, logger: logger}
}

// Evaluate runs the shouldRepeat decision of §4.6 and, when it holds,
// inserts a clone of task scheduled at its NextOccurrence. task must
// already have been saved (or deleted) by the caller — Evaluate never
// mutates the original row's persisted state, only its in-memory Start
// field, used to compute the clone's window anchor.
func (r *Recurrence) Evaluate(ctx context.Context, task *ScheduledTask, success bool, raised error) {
	shouldRepeat := (success && task.ContinueOnSuccess) ||
		(!success && task.ContinueOnFailure) ||
		(raised != nil && task.ContinueOnError)
	if !shouldRepeat {
		return
	}

	// Advance the window anchor to the occurrence that just ran.
	task.Start = task.RunAt

	next, ok, err := task.NextOccurrence(r.oracle)
	if err != nil {
		r.logger.Error("failed to compute next occurrence for task %q: %v", task.Id, err)
		return
	}
	if !ok {
		return
	}

	clone := task.cloneForRecurrence(next)
	if err := r.store.Save(ctx, clone); err != nil {
		r.logger.Error("failed to insert recurrence clone of task %q: %v", task.Id, err)
	}
}
