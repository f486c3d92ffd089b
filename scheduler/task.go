package scheduler

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arnegrau/duratask/trigger"
)

// ErrUnboundedSeries is returned when a caller asks for the full or last
// occurrence list of a task whose recurrence window has no End.
var ErrUnboundedSeries = errors.New("scheduler: cannot enumerate occurrences of an unbounded recurrence")

// ErrNoOccurrence is returned by LastOccurrence when a bounded series has
// already produced all of its occurrences.
var ErrNoOccurrence = errors.New("scheduler: series has no remaining occurrences")

// HandlerReference identifies a handler type plus an optional serialized
// instance payload used to inject state into the handler before execution.
// It is opaque to everything except the HandlerRegistry and the
// TypeResolver it is handed to.
type HandlerReference struct {
	Namespace  string
	Entrypoint string
	Payload    []byte
}

// TypeName returns the "{namespace}.{entrypoint}" string the TypeResolver
// is queried with.
func (r HandlerReference) TypeName() string {
	return r.Namespace + "." + r.Entrypoint
}

func (r HandlerReference) cacheKey() string {
	return r.Namespace + "." + r.Entrypoint + "\x00" + string(r.Payload)
}

// ScheduledTask is the persistent record the engine operates on. It is
// passed to the Store verbatim; the engine never assumes anything about
// how a Store serializes it.
type ScheduledTask struct {
	Id       string
	Priority int
	Attempts int
	Handler  HandlerReference
	RunAt    time.Time

	MaximumRuntime  time.Duration
	MaximumAttempts int

	DeleteOnSuccess bool
	DeleteOnFailure bool
	DeleteOnError   bool

	CreatedAt   time.Time
	FailedAt    *time.Time
	SucceededAt *time.Time
	LastError   string

	LockedAt *time.Time
	LockedBy string

	Tags []string

	Expression string
	Start      time.Time
	End        *time.Time

	ContinueOnSuccess bool
	ContinueOnFailure bool
	ContinueOnError   bool
}

// NewScheduledTask returns a task with the ContinueOn* defaults of spec §3.1
// (all true) and RunAt normalized to UTC.
func NewScheduledTask(handler HandlerReference, runAt time.Time) *ScheduledTask {
	return &ScheduledTask{
		Id:                uuid.NewString(),
		Handler:           handler,
		RunAt:             runAt.UTC(),
		CreatedAt:         time.Now().UTC(),
		Start:             runAt.UTC(),
		ContinueOnSuccess: true,
		ContinueOnFailure: true,
		ContinueOnError:   true,
	}
}

// JobWillFail reports whether the next unsuccessful attempt for t is
// terminal: Attempts >= MaximumAttempts, evaluated after the attempt
// increment. MaximumAttempts <= 0 means "no cap", so this is never true.
func JobWillFail(t *ScheduledTask) bool {
	return t.MaximumAttempts > 0 && t.Attempts >= t.MaximumAttempts
}

// RunningOvertime reports whether a locked task has been held past 125% of
// its MaximumRuntime. The core only exposes this probe; it never acts on
// it — lock expiration is a Store concern.
func RunningOvertime(t *ScheduledTask, now time.Time) bool {
	if t.LockedAt == nil || t.MaximumRuntime <= 0 {
		return false
	}
	elapsed := now.Sub(*t.LockedAt)
	return elapsed >= time.Duration(float64(t.MaximumRuntime)*1.25)
}

// NextOccurrence computes the next recurrence instant for t, or (zero,
// false, nil) if t does not recur. For a bounded series (End set) it is
// the first occurrence strictly after RunAt and at or before End; for an
// unbounded series it is simply the next occurrence after RunAt. It never
// materializes an infinite series.
func (t *ScheduledTask) NextOccurrence(oracle trigger.OccurrenceOracle) (time.Time, bool, error) {
	expr := strings.TrimSpace(t.Expression)
	if expr == "" {
		return time.Time{}, false, nil
	}

	if t.End != nil {
		occurrences, err := oracle.Between(expr, t.RunAt, *t.End)
		if err != nil {
			return time.Time{}, false, err
		}
		for _, occ := range occurrences {
			if occ.After(t.RunAt) {
				return occ, true, nil
			}
		}
		return time.Time{}, false, nil
	}

	next, ok, err := oracle.Next(expr, t.RunAt)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ok {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// FiniteSeriesOccurrences returns every occurrence between Start and End.
// It is an error to call this on a task without an End — a series without
// a bound cannot be enumerated in full.
func (t *ScheduledTask) FiniteSeriesOccurrences(oracle trigger.OccurrenceOracle) ([]time.Time, error) {
	if t.End == nil {
		return nil, ErrUnboundedSeries
	}
	expr := strings.TrimSpace(t.Expression)
	if expr == "" {
		return nil, nil
	}
	return oracle.Between(expr, t.Start, *t.End)
}

// LastOccurrence returns the final occurrence of a bounded series. It
// returns ErrNoOccurrence if the series is bounded but has no occurrences
// left (e.g. End == Start), and ErrUnboundedSeries if End is unset.
func (t *ScheduledTask) LastOccurrence(oracle trigger.OccurrenceOracle) (time.Time, error) {
	occurrences, err := t.FiniteSeriesOccurrences(oracle)
	if err != nil {
		return time.Time{}, err
	}
	if len(occurrences) == 0 {
		return time.Time{}, ErrNoOccurrence
	}
	return occurrences[len(occurrences)-1], nil
}

// cloneForRecurrence forks a new task row for the next occurrence. The
// original is left untouched; attempts reset to zero and every lifecycle
// timestamp and lock field is cleared, per the "clone, don't mutate"
// contract of §4.6/§9.
func (t *ScheduledTask) cloneForRecurrence(runAt time.Time) *ScheduledTask {
	return &ScheduledTask{
		Id:                uuid.NewString(),
		Priority:          t.Priority,
		Handler:           t.Handler,
		RunAt:             runAt.UTC(),
		MaximumRuntime:    t.MaximumRuntime,
		MaximumAttempts:   t.MaximumAttempts,
		DeleteOnSuccess:   t.DeleteOnSuccess,
		DeleteOnFailure:   t.DeleteOnFailure,
		DeleteOnError:     t.DeleteOnError,
		CreatedAt:         time.Now().UTC(),
		Tags:              append([]string(nil), t.Tags...),
		Expression:        t.Expression,
		Start:             t.Start,
		End:               t.End,
		ContinueOnSuccess: t.ContinueOnSuccess,
		ContinueOnFailure: t.ContinueOnFailure,
		ContinueOnError:   t.ContinueOnError,
	}
}
