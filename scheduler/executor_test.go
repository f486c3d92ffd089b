package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arnegrau/duratask/scheduler"
	"github.com/arnegrau/duratask/store/memory"
	"github.com/arnegrau/duratask/trigger"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Info(string, ...any)  {}

func newTestExecutor(store scheduler.Store, resolver *scheduler.StaticTypeResolver) *scheduler.Executor {
	registry := scheduler.NewHandlerRegistry(resolver)
	dispatcher := scheduler.NewHookDispatcher()
	recurrence := scheduler.NewRecurrence(store, trigger.NewCronOracle(), nopLogger{})
	return scheduler.NewExecutor(registry, dispatcher, store, recurrence, trigger.LinearBackoff(time.Second, time.Minute), nopLogger{}, scheduler.NewPendingSet())
}

type alwaysSucceeds struct{}

func (alwaysSucceeds) Perform(context.Context) (bool, error) { return true, nil }

type alwaysFails struct{}

func (alwaysFails) Perform(context.Context) (bool, error) { return false, nil }

type alwaysRaises struct{}

func (alwaysRaises) Perform(context.Context) (bool, error) { return false, errors.New("kaboom") }

func TestExecutorRunSuccessDeletesWhenConfigured(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Ok", (*alwaysSucceeds)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Ok"}, time.Now())
	task.DeleteOnSuccess = true
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	_, ok := store.Get(context.Background(), task.Id)
	require.False(t, ok)
}

func TestExecutorRunSuccessMarksSucceededAt(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Ok", (*alwaysSucceeds)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Ok"}, time.Now())
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	saved, ok := store.Get(context.Background(), task.Id)
	require.True(t, ok)
	require.NotNil(t, saved.SucceededAt)
	require.Nil(t, saved.LockedAt)
}

func TestExecutorRunFailureReschedulesWithBackoff(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Fail", (*alwaysFails)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Fail"}, time.Now())
	task.MaximumAttempts = 5
	require.NoError(t, store.Save(context.Background(), task))

	before := time.Now()
	require.NoError(t, executor.Run(context.Background(), task, true))

	saved, ok := store.Get(context.Background(), task.Id)
	require.True(t, ok)
	require.Equal(t, 1, saved.Attempts)
	require.True(t, saved.RunAt.After(before))
	require.Nil(t, saved.FailedAt)
}

func TestExecutorRunTerminalFailureSetsFailedAt(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Fail", (*alwaysFails)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Fail"}, time.Now())
	task.MaximumAttempts = 1
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	saved, ok := store.Get(context.Background(), task.Id)
	require.True(t, ok)
	require.NotNil(t, saved.FailedAt)
}

func TestExecutorRunTerminalFailureDeletesWhenConfigured(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Fail", (*alwaysFails)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Fail"}, time.Now())
	task.MaximumAttempts = 1
	task.DeleteOnFailure = true
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	_, ok := store.Get(context.Background(), task.Id)
	require.False(t, ok)
}

func TestExecutorRunMissingHandlerRecordsError(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Missing"}, time.Now())
	task.MaximumAttempts = 5
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	saved, ok := store.Get(context.Background(), task.Id)
	require.True(t, ok)
	require.Equal(t, scheduler.MissingHandlerError, saved.LastError)
}

func TestExecutorRunRaisedErrorRecordsMessage(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Raise", (*alwaysRaises)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Raise"}, time.Now())
	task.MaximumAttempts = 5
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	saved, ok := store.Get(context.Background(), task.Id)
	require.True(t, ok)
	require.Equal(t, "kaboom", saved.LastError)
}

func TestExecutorRunRecurrenceClonesOnSuccess(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Ok", (*alwaysSucceeds)(nil))
	executor := newTestExecutor(store, resolver)

	runAt := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Ok"}, runAt)
	task.Expression = "0 0 * * * *"
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	require.Equal(t, 2, store.Len())
}

func TestExecutorRunNoRecurrenceWithoutExpression(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Ok", (*alwaysSucceeds)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Ok"}, time.Now())
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	require.Equal(t, 1, store.Len())
}

func TestExecutorRunNoRecurrenceWhenContinueOnSuccessFalse(t *testing.T) {
	store := memory.New()
	resolver := scheduler.NewStaticTypeResolver()
	resolver.Register("jobs.Ok", (*alwaysSucceeds)(nil))
	executor := newTestExecutor(store, resolver)

	task := scheduler.NewScheduledTask(scheduler.HandlerReference{Namespace: "jobs", Entrypoint: "Ok"}, time.Now())
	task.Expression = "0 0 * * * *"
	task.ContinueOnSuccess = false
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, executor.Run(context.Background(), task, true))

	require.Equal(t, 1, store.Len())
}
