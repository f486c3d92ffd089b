package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/arnegrau/duratask/trigger"
)

// Settings enumerates every configuration option of spec §6.4.
type Settings struct {
	// DelayTasks, if false (the zero value, which withDefaults leaves
	// as is), makes Scheduler.Submit execute the task synchronously and
	// bypass the Store entirely. If true, Submit only persists the task
	// for the Poller to pick up.
	DelayTasks bool

	TypeResolver TypeResolver
	Store        Store

	Concurrency   int
	SleepInterval time.Duration
	ReadAhead     int

	IntervalFunction trigger.IntervalFunc
	Oracle           trigger.OccurrenceOracle

	// Defaults applied to newly provisioned tasks.
	MaximumAttempts int
	MaximumRuntime  time.Duration
	DeleteOnError   bool
	DeleteOnFailure bool
	DeleteOnSuccess bool
	Priority        int

	WorkerID string
	Logger   Logger
}

func (s Settings) withDefaults() Settings {
	if s.Concurrency <= 0 {
		s.Concurrency = 4
	}
	if s.SleepInterval <= 0 {
		s.SleepInterval = 5 * time.Second
	}
	if s.ReadAhead <= 0 {
		s.ReadAhead = s.Concurrency
	}
	if s.IntervalFunction == nil {
		s.IntervalFunction = trigger.ExponentialBackoff(10*time.Second, 10*time.Minute)
	}
	if s.Oracle == nil {
		s.Oracle = trigger.NewCronOracle()
	}
	if s.WorkerID == "" {
		s.WorkerID = uuid.NewString()
	}
	if s.Logger == nil {
		s.Logger = stdLogger{}
	}
	return s
}

// newTask applies Settings' defaults to a freshly constructed task, the
// way a producer API would before handing it to Submit — kept here only
// because the producer API itself is out of scope (spec §1).
func (s Settings) newTask(handler HandlerReference, runAt time.Time) *ScheduledTask {
	t := NewScheduledTask(handler, runAt)
	t.Priority = s.Priority
	t.MaximumAttempts = s.MaximumAttempts
	t.MaximumRuntime = s.MaximumRuntime
	t.DeleteOnError = s.DeleteOnError
	t.DeleteOnFailure = s.DeleteOnFailure
	t.DeleteOnSuccess = s.DeleteOnSuccess
	return t
}
