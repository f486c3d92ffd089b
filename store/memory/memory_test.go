package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arnegrau/duratask/scheduler"
	"github.com/arnegrau/duratask/store/memory"
)

func TestSaveAssignsId(t *testing.T) {
	store := memory.New()
	task := &scheduler.ScheduledTask{RunAt: time.Now()}

	require.NoError(t, store.Save(context.Background(), task))
	require.NotEmpty(t, task.Id)
	require.Equal(t, 1, store.Len())
}

func TestGetAndLockNextAvailableOnlyReturnsDueUnlocked(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	due := &scheduler.ScheduledTask{RunAt: time.Now().Add(-time.Minute)}
	future := &scheduler.ScheduledTask{RunAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(ctx, due))
	require.NoError(t, store.Save(ctx, future))

	locked, err := store.GetAndLockNextAvailable(ctx, 10, "worker-1")
	require.NoError(t, err)
	require.Len(t, locked, 1)
	require.Equal(t, due.Id, locked[0].Id)
	require.Equal(t, "worker-1", locked[0].LockedBy)
	require.NotNil(t, locked[0].LockedAt)
}

func TestGetAndLockNextAvailableExcludesAlreadyLocked(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	task := &scheduler.ScheduledTask{RunAt: time.Now().Add(-time.Minute)}
	require.NoError(t, store.Save(ctx, task))

	first, err := store.GetAndLockNextAvailable(ctx, 10, "worker-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := store.GetAndLockNextAvailable(ctx, 10, "worker-2")
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestGetAndLockNextAvailableOrdersByRunAt(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	now := time.Now().Add(-time.Hour)
	late := &scheduler.ScheduledTask{RunAt: now.Add(30 * time.Minute)}
	early := &scheduler.ScheduledTask{RunAt: now}
	require.NoError(t, store.Save(ctx, late))
	require.NoError(t, store.Save(ctx, early))

	locked, err := store.GetAndLockNextAvailable(ctx, 1, "worker-1")
	require.NoError(t, err)
	require.Len(t, locked, 1)
	require.Equal(t, early.Id, locked[0].Id)
}

func TestGetAndLockNextAvailableRespectsLimit(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, &scheduler.ScheduledTask{RunAt: time.Now().Add(-time.Minute)}))
	}

	locked, err := store.GetAndLockNextAvailable(ctx, 3, "worker-1")
	require.NoError(t, err)
	require.Len(t, locked, 3)
}

func TestDeleteUnknownReturnsErrNotFound(t *testing.T) {
	store := memory.New()
	err := store.Delete(context.Background(), &scheduler.ScheduledTask{Id: "missing"})
	require.ErrorIs(t, err, memory.ErrNotFound)
}

func TestDeleteRemovesRow(t *testing.T) {
	store := memory.New()
	task := &scheduler.ScheduledTask{RunAt: time.Now()}
	require.NoError(t, store.Save(context.Background(), task))

	require.NoError(t, store.Delete(context.Background(), task))
	require.Equal(t, 0, store.Len())
}
