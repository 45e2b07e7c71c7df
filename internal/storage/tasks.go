package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	narrataerrors "narrata/internal/errors"
)

// TaskState mirrors the recurring_task_state row.
type TaskState struct {
	TaskID              string
	NarrativeName       string
	LastRun             time.Time
	NextRun             time.Time
	ConsecutiveFailures int
	IsPaused            bool
	Metadata            map[string]any
}

// TaskExecution mirrors one recurring_task_executions row.
type TaskExecution struct {
	TaskID         string
	StartedAt      time.Time
	CompletedAt    time.Time
	Success        bool
	SucceededCount int
	FailedCount    int
	SkippedCount   int
	ErrorMessage   string
	Metadata       map[string]any
}

// UpsertTaskState inserts or updates a task's state row.
func (s *Store) UpsertTaskState(ctx context.Context, t TaskState) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO recurring_task_state (task_id, narrative_name, last_run, next_run, consecutive_failures, is_paused, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (task_id) DO UPDATE SET
			narrative_name = EXCLUDED.narrative_name,
			last_run = EXCLUDED.last_run,
			next_run = EXCLUDED.next_run,
			consecutive_failures = EXCLUDED.consecutive_failures,
			is_paused = EXCLUDED.is_paused,
			metadata = EXCLUDED.metadata,
			updated_at = now()`,
		t.TaskID, t.NarrativeName, nullableTime(t.LastRun), nullableTime(t.NextRun), t.ConsecutiveFailures, t.IsPaused, meta,
	)
	if err != nil {
		return narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return nil
}

// GetTaskState loads one task's state row.
func (s *Store) GetTaskState(ctx context.Context, taskID string) (TaskState, error) {
	var (
		t    TaskState
		meta []byte
	)
	t.TaskID = taskID
	row := s.pool.QueryRow(ctx, `
		SELECT narrative_name, COALESCE(last_run, now()), COALESCE(next_run, now()), consecutive_failures, is_paused, COALESCE(metadata, '{}')
		FROM recurring_task_state WHERE task_id = $1`, taskID)
	if err := row.Scan(&t.NarrativeName, &t.LastRun, &t.NextRun, &t.ConsecutiveFailures, &t.IsPaused, &meta); err != nil {
		if err == pgx.ErrNoRows {
			return t, narrataerrors.New(narrataerrors.KindStorageFailure, narrataerrors.ReasonNotFound, "task "+taskID+" not found")
		}
		return t, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	_ = json.Unmarshal(meta, &t.Metadata)
	return t, nil
}

// DueTasks returns the task ids of every non-paused task whose next_run
// is at or before now.
func (s *Store) DueTasks(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT task_id FROM recurring_task_state
		WHERE is_paused = FALSE AND next_run IS NOT NULL AND next_run <= $1
		ORDER BY next_run`, now)
	if err != nil {
		return nil, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertTaskExecution records the start of one task attempt, returning
// the generated row's primary key for a later CompleteTaskExecution call.
func (s *Store) InsertTaskExecution(ctx context.Context, taskID string, startedAt time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO recurring_task_executions (task_id, started_at, success)
		VALUES ($1, $2, NULL)
		RETURNING id`, taskID, startedAt,
	).Scan(&id)
	if err != nil {
		return 0, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return id, nil
}

// CompleteTaskExecution finalizes a task execution row with its outcome.
func (s *Store) CompleteTaskExecution(ctx context.Context, id int64, completedAt time.Time, success bool, succeeded, failed, skipped int, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE recurring_task_executions
		SET completed_at = $2, success = $3, succeeded_count = $4, failed_count = $5, skipped_count = $6, error_message = $7
		WHERE id = $1`,
		id, completedAt, success, succeeded, failed, skipped, nullableString(errMsg),
	)
	if err != nil {
		return narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return nil
}

// PruneOldExecutions deletes recurring_task_executions rows older than
// now-days and returns the count deleted.
func (s *Store) PruneOldExecutions(ctx context.Context, days int, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -days)
	tag, err := s.pool.Exec(ctx, `DELETE FROM recurring_task_executions WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return tag.RowsAffected(), nil
}
