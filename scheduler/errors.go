package scheduler

import "errors"

// ErrCancelled is the value Executor.Run feeds into Recurrence.Evaluate as
// the raised error when an attempt is abandoned because its context was
// cancelled (root shutdown or per-task deadline) — cancellation is itself
// the exceptional outcome a ContinueOnError task reacts to, even when the
// handler cooperatively returns a nil error on ctx.Done(). task.LastError
// is set to CancelledError, not this error's text.
var ErrCancelled = errors.New("scheduler: attempt cancelled")

// ErrInvalidSeriesBounds is returned by ScheduledTask.FiniteSeriesOccurrences
// and LastOccurrence when End is unset.
var ErrInvalidSeriesBounds = ErrUnboundedSeries

// MissingHandlerError is the LastError text recorded, verbatim per spec
// §4.5, when the HandlerRegistry cannot resolve a task's handler.
const MissingHandlerError = "Missing or invalid handler"

// CancelledError is the LastError text recorded, verbatim per spec §4.5,
// when an attempt is cancelled.
const CancelledError = "Cancelled"
