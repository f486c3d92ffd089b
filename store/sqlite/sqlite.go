// Package sqlite implements a durable, cgo-free scheduler.Store backed by
// modernc.org/sqlite — useful where a standalone PostgreSQL server is not
// available. A SERIALIZABLE transaction stands in for PostgreSQL's
// "FOR UPDATE SKIP LOCKED", since sqlite has no row-level locking.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arnegrau/duratask/scheduler"
)

// Schema creates the backing table and its due-task index if absent.
const Schema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id                  TEXT PRIMARY KEY,
	priority            INTEGER NOT NULL DEFAULT 0,
	attempts            INTEGER NOT NULL DEFAULT 0,
	handler_namespace   TEXT NOT NULL,
	handler_entrypoint  TEXT NOT NULL,
	handler_payload     BLOB,
	run_at              DATETIME NOT NULL,
	maximum_runtime_ms  INTEGER NOT NULL DEFAULT 0,
	maximum_attempts    INTEGER NOT NULL DEFAULT 0,
	delete_on_success   INTEGER NOT NULL DEFAULT 0,
	delete_on_failure   INTEGER NOT NULL DEFAULT 0,
	delete_on_error     INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL,
	failed_at           DATETIME,
	succeeded_at        DATETIME,
	last_error          TEXT NOT NULL DEFAULT '',
	locked_at           DATETIME,
	locked_by           TEXT NOT NULL DEFAULT '',
	tags                TEXT NOT NULL DEFAULT '[]',
	expression          TEXT NOT NULL DEFAULT '',
	start_at            DATETIME NOT NULL,
	end_at              DATETIME,
	continue_on_success INTEGER NOT NULL DEFAULT 1,
	continue_on_failure INTEGER NOT NULL DEFAULT 1,
	continue_on_error   INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks(locked_at, run_at);
`

// Store is a sqlite-backed scheduler.Store.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB (driver "sqlite", modernc.org/sqlite).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema runs Schema against the database.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// GetAndLockNextAvailable implements scheduler.Store. sqlite has no
// SKIP LOCKED, so a SERIALIZABLE transaction plus an UPDATE...WHERE
// locked_at IS NULL guard does the same job: under sqlite's single-writer
// model, the two statements execute atomically with respect to any other
// writer.
func (s *Store) GetAndLockNextAvailable(ctx context.Context, n int, workerID string) ([]*scheduler.ScheduledTask, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	rows, err := tx.QueryContext(ctx, `
		SELECT id, priority, attempts, handler_namespace, handler_entrypoint, handler_payload,
		       run_at, maximum_runtime_ms, maximum_attempts, delete_on_success, delete_on_failure,
		       delete_on_error, created_at, failed_at, succeeded_at, last_error, locked_at, locked_by,
		       tags, expression, start_at, end_at, continue_on_success, continue_on_failure, continue_on_error
		FROM scheduled_tasks
		WHERE locked_at IS NULL AND run_at <= ?
		ORDER BY run_at ASC
		LIMIT ?`, now, n)
	if err != nil {
		return nil, fmt.Errorf("failed to select due tasks: %w", err)
	}

	var tasks []*scheduler.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan due task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, t := range tasks {
		if _, err := tx.ExecContext(ctx,
			`UPDATE scheduled_tasks SET locked_at = ?, locked_by = ? WHERE id = ? AND locked_at IS NULL`,
			now, workerID, t.Id); err != nil {
			return nil, fmt.Errorf("failed to lock task %q: %w", t.Id, err)
		}
		lockedAt := now
		t.LockedAt = &lockedAt
		t.LockedBy = workerID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lock transaction: %w", err)
	}
	return tasks, nil
}

// Save implements scheduler.Store.
func (s *Store) Save(ctx context.Context, task *scheduler.ScheduledTask) error {
	if task.Id == "" {
		task.Id = uuid.NewString()
	}
	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (
			id, priority, attempts, handler_namespace, handler_entrypoint, handler_payload,
			run_at, maximum_runtime_ms, maximum_attempts, delete_on_success, delete_on_failure,
			delete_on_error, created_at, failed_at, succeeded_at, last_error, locked_at, locked_by,
			tags, expression, start_at, end_at, continue_on_success, continue_on_failure, continue_on_error
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			priority=excluded.priority, attempts=excluded.attempts,
			handler_namespace=excluded.handler_namespace, handler_entrypoint=excluded.handler_entrypoint,
			handler_payload=excluded.handler_payload, run_at=excluded.run_at,
			maximum_runtime_ms=excluded.maximum_runtime_ms, maximum_attempts=excluded.maximum_attempts,
			delete_on_success=excluded.delete_on_success, delete_on_failure=excluded.delete_on_failure,
			delete_on_error=excluded.delete_on_error, failed_at=excluded.failed_at,
			succeeded_at=excluded.succeeded_at, last_error=excluded.last_error,
			locked_at=excluded.locked_at, locked_by=excluded.locked_by, tags=excluded.tags,
			expression=excluded.expression, start_at=excluded.start_at, end_at=excluded.end_at,
			continue_on_success=excluded.continue_on_success, continue_on_failure=excluded.continue_on_failure,
			continue_on_error=excluded.continue_on_error`,
		task.Id, task.Priority, task.Attempts, task.Handler.Namespace, task.Handler.Entrypoint, task.Handler.Payload,
		task.RunAt.UTC(), task.MaximumRuntime.Milliseconds(), task.MaximumAttempts, task.DeleteOnSuccess, task.DeleteOnFailure,
		task.DeleteOnError, task.CreatedAt.UTC(), task.FailedAt, task.SucceededAt, task.LastError, task.LockedAt, task.LockedBy,
		string(tags), task.Expression, task.Start.UTC(), task.End, task.ContinueOnSuccess, task.ContinueOnFailure, task.ContinueOnError)
	if err != nil {
		return fmt.Errorf("failed to save task %q: %w", task.Id, err)
	}
	return nil
}

// Delete implements scheduler.Store.
func (s *Store) Delete(ctx context.Context, task *scheduler.ScheduledTask) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM scheduled_tasks WHERE id = ?", task.Id)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*scheduler.ScheduledTask, error) {
	var t scheduler.ScheduledTask
	var tags string
	var maxRuntimeMs int64
	var failedAt, succeededAt, lockedAt, endAt sql.NullTime

	err := row.Scan(
		&t.Id, &t.Priority, &t.Attempts, &t.Handler.Namespace, &t.Handler.Entrypoint, &t.Handler.Payload,
		&t.RunAt, &maxRuntimeMs, &t.MaximumAttempts, &t.DeleteOnSuccess, &t.DeleteOnFailure,
		&t.DeleteOnError, &t.CreatedAt, &failedAt, &succeededAt, &t.LastError, &lockedAt, &t.LockedBy,
		&tags, &t.Expression, &t.Start, &endAt, &t.ContinueOnSuccess, &t.ContinueOnFailure, &t.ContinueOnError,
	)
	if err != nil {
		return nil, err
	}

	t.MaximumRuntime = time.Duration(maxRuntimeMs) * time.Millisecond
	t.RunAt = t.RunAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.Start = t.Start.UTC()
	if failedAt.Valid {
		v := failedAt.Time.UTC()
		t.FailedAt = &v
	}
	if succeededAt.Valid {
		v := succeededAt.Time.UTC()
		t.SucceededAt = &v
	}
	if lockedAt.Valid {
		v := lockedAt.Time.UTC()
		t.LockedAt = &v
	}
	if endAt.Valid {
		v := endAt.Time.UTC()
		t.End = &v
	}
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &t.Tags)
	}
	return &t, nil
}
