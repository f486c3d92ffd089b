// Package memory implements an in-process scheduler.Store, useful for
// tests and for DelayTasks=false style usage where durability across
// restarts is not required.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arnegrau/duratask/scheduler"
)

// ErrNotFound is returned by Delete for an unknown Id.
var ErrNotFound = fmt.Errorf("memory store: task not found")

// Store is a mutex-guarded map simulating a remote, lockable row-store.
type Store struct {
	mu    sync.Mutex
	tasks map[string]*scheduler.ScheduledTask
}

// New returns an empty Store.
func New() *Store {
	return &Store{tasks: map[string]*scheduler.ScheduledTask{}}
}

// GetAndLockNextAvailable implements scheduler.Store.
func (s *Store) GetAndLockNextAvailable(_ context.Context, n int, workerID string) ([]*scheduler.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()

	due := make([]*scheduler.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.LockedAt != nil {
			continue
		}
		if t.RunAt.After(now) {
			continue
		}
		due = append(due, t)
	}

	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > n {
		due = due[:n]
	}

	locked := make([]*scheduler.ScheduledTask, 0, len(due))
	for _, t := range due {
		lockedAt := now
		t.LockedAt = &lockedAt
		t.LockedBy = workerID
		cp := *t
		locked = append(locked, &cp)
	}
	return locked, nil
}

// Save implements scheduler.Store. An empty Id inserts a new row.
func (s *Store) Save(_ context.Context, task *scheduler.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Id == "" {
		task.Id = uuid.NewString()
	}
	cp := *task
	s.tasks[task.Id] = &cp
	return nil
}

// Delete implements scheduler.Store.
func (s *Store) Delete(_ context.Context, task *scheduler.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.Id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, task.Id)
	return nil
}

// Get returns the stored task by Id, for tests and diagnostics.
func (s *Store) Get(_ context.Context, id string) (*scheduler.ScheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Len returns the number of rows currently held, for tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// All returns every stored task, ordered by RunAt, for tests and
// diagnostics.
func (s *Store) All() []*scheduler.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*scheduler.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].RunAt.Before(all[j].RunAt) })
	return all
}
