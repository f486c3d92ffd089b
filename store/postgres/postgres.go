// Package postgres implements a durable scheduler.Store backed by
// PostgreSQL, using transactional "SELECT ... FOR UPDATE SKIP LOCKED" to
// make GetAndLockNextAvailable safe under concurrent callers.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/arnegrau/duratask/scheduler"
)

func newID() string { return uuid.NewString() }

const driverName = "postgres"

const defaultTable = "scheduled_tasks"

// entry is the row shape persisted for a scheduler.ScheduledTask.
type entry struct {
	Id         string         `db:"id"`
	Priority   int            `db:"priority"`
	Attempts   int            `db:"attempts"`
	Namespace  string         `db:"handler_namespace"`
	Entrypoint string         `db:"handler_entrypoint"`
	Payload    []byte         `db:"handler_payload"`
	RunAt      time.Time      `db:"run_at"`
	MaxRuntime int64          `db:"maximum_runtime_ms"`
	MaxAttempt int            `db:"maximum_attempts"`
	DelSucc    bool           `db:"delete_on_success"`
	DelFail    bool           `db:"delete_on_failure"`
	DelErr     bool           `db:"delete_on_error"`
	CreatedAt  time.Time      `db:"created_at"`
	FailedAt   *time.Time     `db:"failed_at"`
	SuccAt     *time.Time     `db:"succeeded_at"`
	LastError  string         `db:"last_error"`
	LockedAt   *time.Time     `db:"locked_at"`
	LockedBy   string         `db:"locked_by"`
	Tags       pq.StringArray `db:"tags"`
	Expression string         `db:"expression"`
	Start      time.Time      `db:"start_at"`
	End        *time.Time     `db:"end_at"`
	ContSucc   bool           `db:"continue_on_success"`
	ContFail   bool           `db:"continue_on_failure"`
	ContErr    bool           `db:"continue_on_error"`
}

func toEntry(t *scheduler.ScheduledTask) *entry {
	return &entry{
		Id:         t.Id,
		Priority:   t.Priority,
		Attempts:   t.Attempts,
		Namespace:  t.Handler.Namespace,
		Entrypoint: t.Handler.Entrypoint,
		Payload:    t.Handler.Payload,
		RunAt:      t.RunAt.UTC(),
		MaxRuntime: t.MaximumRuntime.Milliseconds(),
		MaxAttempt: t.MaximumAttempts,
		DelSucc:    t.DeleteOnSuccess,
		DelFail:    t.DeleteOnFailure,
		DelErr:     t.DeleteOnError,
		CreatedAt:  t.CreatedAt.UTC(),
		FailedAt:   t.FailedAt,
		SuccAt:     t.SucceededAt,
		LastError:  t.LastError,
		LockedAt:   t.LockedAt,
		LockedBy:   t.LockedBy,
		Tags:       pq.StringArray(t.Tags),
		Expression: t.Expression,
		Start:      t.Start.UTC(),
		End:        t.End,
		ContSucc:   t.ContinueOnSuccess,
		ContFail:   t.ContinueOnFailure,
		ContErr:    t.ContinueOnError,
	}
}

func fromEntry(e *entry) *scheduler.ScheduledTask {
	return &scheduler.ScheduledTask{
		Id:       e.Id,
		Priority: e.Priority,
		Attempts: e.Attempts,
		Handler: scheduler.HandlerReference{
			Namespace:  e.Namespace,
			Entrypoint: e.Entrypoint,
			Payload:    e.Payload,
		},
		RunAt:             e.RunAt.UTC(),
		MaximumRuntime:    time.Duration(e.MaxRuntime) * time.Millisecond,
		MaximumAttempts:   e.MaxAttempt,
		DeleteOnSuccess:   e.DelSucc,
		DeleteOnFailure:   e.DelFail,
		DeleteOnError:     e.DelErr,
		CreatedAt:         e.CreatedAt.UTC(),
		FailedAt:          e.FailedAt,
		SucceededAt:       e.SuccAt,
		LastError:         e.LastError,
		LockedAt:          e.LockedAt,
		LockedBy:          e.LockedBy,
		Tags:              []string(e.Tags),
		Expression:        e.Expression,
		Start:             e.Start.UTC(),
		End:               e.End,
		ContinueOnSuccess: e.ContSucc,
		ContinueOnFailure: e.ContFail,
		ContinueOnError:   e.ContErr,
	}
}

// Option configures a Store.
type Option func(*Store)

// TableOption overrides the table name, default "scheduled_tasks".
func TableOption(table string) Option {
	return func(s *Store) { s.table = table }
}

// Store is a PostgreSQL-backed scheduler.Store.
type Store struct {
	db    *sqlx.DB
	table string
}

// New wraps an already-opened *sql.DB. The caller owns the connection's
// lifecycle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:    sqlx.NewDb(db, driverName),
		table: defaultTable,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetAndLockNextAvailable implements scheduler.Store using
// "SELECT ... FOR UPDATE SKIP LOCKED" inside a transaction, so the same
// row is never handed to two concurrent callers.
func (s *Store) GetAndLockNextAvailable(ctx context.Context, n int, workerID string) ([]*scheduler.ScheduledTask, error) {
	var entries []entry
	err := s.withTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var ids []string
		err := tx.SelectContext(ctx, &ids, fmt.Sprintf(
			`SELECT id FROM %s WHERE run_at <= $1 AND locked_at IS NULL
			 ORDER BY run_at ASC FOR UPDATE SKIP LOCKED LIMIT $2`, s.table),
			time.Now().UTC(), n)
		if err != nil {
			return fmt.Errorf("failed to select due tasks: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		now := time.Now().UTC()
		rows, err := tx.QueryxContext(ctx, fmt.Sprintf(
			`UPDATE %s SET locked_at = $1, locked_by = $2
			 WHERE id = ANY($3)
			 RETURNING id, priority, attempts, handler_namespace, handler_entrypoint, handler_payload,
			           run_at, maximum_runtime_ms, maximum_attempts, delete_on_success, delete_on_failure,
			           delete_on_error, created_at, failed_at, succeeded_at, last_error, locked_at, locked_by,
			           tags, expression, start_at, end_at, continue_on_success, continue_on_failure, continue_on_error`,
			s.table),
			now, workerID, pq.StringArray(ids))
		if err != nil {
			return fmt.Errorf("failed to lock due tasks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e entry
			if err := rows.StructScan(&e); err != nil {
				return fmt.Errorf("failed to scan locked task: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	tasks := make([]*scheduler.ScheduledTask, 0, len(entries))
	for i := range entries {
		tasks = append(tasks, fromEntry(&entries[i]))
	}
	return tasks, nil
}

// Save implements scheduler.Store, upserting by Id. An empty Id inserts.
func (s *Store) Save(ctx context.Context, task *scheduler.ScheduledTask) error {
	if task.Id == "" {
		task.Id = newID()
	}
	e := toEntry(task)

	_, err := s.db.NamedExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, priority, attempts, handler_namespace, handler_entrypoint, handler_payload,
			run_at, maximum_runtime_ms, maximum_attempts, delete_on_success, delete_on_failure,
			delete_on_error, created_at, failed_at, succeeded_at, last_error, locked_at, locked_by,
			tags, expression, start_at, end_at, continue_on_success, continue_on_failure, continue_on_error
		) VALUES (
			:id, :priority, :attempts, :handler_namespace, :handler_entrypoint, :handler_payload,
			:run_at, :maximum_runtime_ms, :maximum_attempts, :delete_on_success, :delete_on_failure,
			:delete_on_error, :created_at, :failed_at, :succeeded_at, :last_error, :locked_at, :locked_by,
			:tags, :expression, :start_at, :end_at, :continue_on_success, :continue_on_failure, :continue_on_error
		)
		ON CONFLICT (id) DO UPDATE SET
			priority = EXCLUDED.priority, attempts = EXCLUDED.attempts,
			handler_namespace = EXCLUDED.handler_namespace, handler_entrypoint = EXCLUDED.handler_entrypoint,
			handler_payload = EXCLUDED.handler_payload, run_at = EXCLUDED.run_at,
			maximum_runtime_ms = EXCLUDED.maximum_runtime_ms, maximum_attempts = EXCLUDED.maximum_attempts,
			delete_on_success = EXCLUDED.delete_on_success, delete_on_failure = EXCLUDED.delete_on_failure,
			delete_on_error = EXCLUDED.delete_on_error, failed_at = EXCLUDED.failed_at,
			succeeded_at = EXCLUDED.succeeded_at, last_error = EXCLUDED.last_error,
			locked_at = EXCLUDED.locked_at, locked_by = EXCLUDED.locked_by, tags = EXCLUDED.tags,
			expression = EXCLUDED.expression, start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
			continue_on_success = EXCLUDED.continue_on_success, continue_on_failure = EXCLUDED.continue_on_failure,
			continue_on_error = EXCLUDED.continue_on_error`, s.table), e)
	if err != nil {
		return fmt.Errorf("failed to save task %q: %w", task.Id, err)
	}
	return nil
}

// Delete implements scheduler.Store.
func (s *Store) Delete(ctx context.Context, task *scheduler.ScheduledTask) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), task.Id)
	if err != nil {
		return fmt.Errorf("failed to delete task %q: %w", task.Id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows deleting task %q: %w", task.Id, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete task %q: no such row", task.Id)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(context.Context, *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}
