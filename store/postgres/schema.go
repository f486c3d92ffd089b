package postgres

import (
	"context"
	"fmt"
)

// Schema is the DDL for the default table name. Callers using
// TableOption should substitute their own table name accordingly.
const Schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id                    TEXT PRIMARY KEY,
	priority              INTEGER NOT NULL DEFAULT 0,
	attempts              INTEGER NOT NULL DEFAULT 0,
	handler_namespace     TEXT NOT NULL,
	handler_entrypoint    TEXT NOT NULL,
	handler_payload       BYTEA,
	run_at                TIMESTAMPTZ NOT NULL,
	maximum_runtime_ms    BIGINT NOT NULL DEFAULT 0,
	maximum_attempts      INTEGER NOT NULL DEFAULT 0,
	delete_on_success     BOOLEAN NOT NULL DEFAULT FALSE,
	delete_on_failure     BOOLEAN NOT NULL DEFAULT FALSE,
	delete_on_error       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at            TIMESTAMPTZ NOT NULL,
	failed_at             TIMESTAMPTZ,
	succeeded_at          TIMESTAMPTZ,
	last_error            TEXT NOT NULL DEFAULT '',
	locked_at             TIMESTAMPTZ,
	locked_by             TEXT NOT NULL DEFAULT '',
	tags                  TEXT[] NOT NULL DEFAULT '{}',
	expression            TEXT NOT NULL DEFAULT '',
	start_at              TIMESTAMPTZ NOT NULL,
	end_at                TIMESTAMPTZ,
	continue_on_success   BOOLEAN NOT NULL DEFAULT TRUE,
	continue_on_failure   BOOLEAN NOT NULL DEFAULT TRUE,
	continue_on_error     BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks (run_at) WHERE locked_at IS NULL;
`

// EnsureSchema creates the table and its supporting index if they do not
// already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
