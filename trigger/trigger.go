// Package trigger implements the OccurrenceOracle and IntervalFunction
// collaborators: cron-expression evaluation and retry backoff. Both are
// side-effect free and deterministic, as required by the engine.
package trigger

import (
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned when a cron expression cannot be parsed.
var ErrInvalidExpression = errors.New("trigger: invalid cron expression")

// OccurrenceOracle answers "when does this cron expression next fire"
// questions. Implementations must be side-effect free and deterministic,
// and must never materialize a full infinite series.
type OccurrenceOracle interface {
	// Next returns the first occurrence strictly after after, or
	// (zero, false, nil) if expression is empty/whitespace.
	Next(expression string, after time.Time) (time.Time, bool, error)
	// Between returns every occurrence in (from, to], ordered ascending.
	Between(expression string, from, to time.Time) ([]time.Time, error)
}

// CronOracle is the default OccurrenceOracle, backed by robfig/cron.
type CronOracle struct {
	parser cron.Parser
}

// NewCronOracle returns an OccurrenceOracle understanding standard five
// field cron expressions, an optional leading seconds field, and the
// "@every"/"@daily"-style descriptors.
func NewCronOracle() *CronOracle {
	return &CronOracle{
		parser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

func (o *CronOracle) schedule(expression string) (cron.Schedule, error) {
	sched, err := o.parser.Parse(expression)
	if err != nil {
		return nil, errors.Join(ErrInvalidExpression, err)
	}
	return sched, nil
}

// Next implements OccurrenceOracle.
func (o *CronOracle) Next(expression string, after time.Time) (time.Time, bool, error) {
	if strings.TrimSpace(expression) == "" {
		return time.Time{}, false, nil
	}
	sched, err := o.schedule(expression)
	if err != nil {
		return time.Time{}, false, err
	}
	next := sched.Next(after.UTC())
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next.UTC(), true, nil
}

// Between implements OccurrenceOracle. It walks the schedule one occurrence
// at a time, which keeps memory use bounded by the size of the window
// rather than by the expression's period.
func (o *CronOracle) Between(expression string, from, to time.Time) ([]time.Time, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	sched, err := o.schedule(expression)
	if err != nil {
		return nil, err
	}

	from, to = from.UTC(), to.UTC()
	var occurrences []time.Time
	cursor := from
	for {
		next := sched.Next(cursor)
		if next.IsZero() || next.After(to) {
			break
		}
		occurrences = append(occurrences, next.UTC())
		cursor = next
	}
	return occurrences, nil
}
