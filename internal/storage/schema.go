package storage

import (
	"context"
	"fmt"
)

// migrate creates every table in the persisted schema if it
// does not already exist. Each statement runs independently, not inside a
// single transaction, following an EnsureTable-if-not-exists
// idiom of tolerating a partially-migrated database rather than failing
// the whole batch over one statement.
func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS narrative_executions (
			id            BIGSERIAL PRIMARY KEY,
			name          TEXT NOT NULL,
			description   TEXT,
			started_at    TIMESTAMPTZ NOT NULL,
			completed_at  TIMESTAMPTZ,
			status        TEXT NOT NULL,
			error_message TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS act_executions (
			id               BIGSERIAL PRIMARY KEY,
			execution_id     BIGINT NOT NULL REFERENCES narrative_executions(id) ON DELETE CASCADE,
			act_name         TEXT NOT NULL,
			sequence_number  INTEGER NOT NULL,
			model            TEXT,
			temperature      DOUBLE PRECISION,
			max_tokens       INTEGER,
			response         TEXT,
			started_at       TIMESTAMPTZ,
			completed_at     TIMESTAMPTZ,
			error_message    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS act_executions_execution_idx ON act_executions (execution_id, sequence_number)`,
		`CREATE TABLE IF NOT EXISTS act_inputs (
			id           BIGSERIAL PRIMARY KEY,
			act_id       BIGINT NOT NULL REFERENCES act_executions(id) ON DELETE CASCADE,
			input_order  INTEGER NOT NULL,
			input_type   TEXT NOT NULL,
			text_content TEXT,
			mime_type    TEXT,
			source_kind  TEXT,
			url          TEXT,
			base64_data  TEXT,
			binary_data  BYTEA,
			filename     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS act_inputs_act_idx ON act_inputs (act_id, input_order)`,
		`CREATE TABLE IF NOT EXISTS recurring_task_state (
			task_id             TEXT PRIMARY KEY,
			narrative_name      TEXT NOT NULL,
			last_run            TIMESTAMPTZ,
			next_run            TIMESTAMPTZ,
			consecutive_failures INTEGER NOT NULL DEFAULT 0,
			is_paused           BOOLEAN NOT NULL DEFAULT FALSE,
			metadata            JSONB,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS recurring_task_executions (
			id              BIGSERIAL PRIMARY KEY,
			task_id         TEXT NOT NULL REFERENCES recurring_task_state(task_id) ON DELETE CASCADE,
			started_at      TIMESTAMPTZ NOT NULL,
			completed_at    TIMESTAMPTZ,
			success         BOOLEAN,
			succeeded_count INTEGER NOT NULL DEFAULT 0,
			failed_count    INTEGER NOT NULL DEFAULT 0,
			skipped_count   INTEGER NOT NULL DEFAULT 0,
			error_message   TEXT,
			metadata        JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS recurring_task_executions_task_idx ON recurring_task_executions (task_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS content_generation_tables (
			table_name      TEXT PRIMARY KEY,
			template_source TEXT NOT NULL,
			narrative_file  TEXT,
			description     TEXT,
			status          TEXT NOT NULL DEFAULT 'running',
			row_count       BIGINT,
			duration_ms     BIGINT,
			error_message   TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration statement: %w", err)
		}
	}
	return nil
}
