package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/narrative"
)

// nullableTime converts a zero time.Time (Go's "not set" value) to a SQL
// NULL, since narrative.ExecutionRecord/ActExecution use a zero time to
// mean "not yet completed" rather than a pointer.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SaveExecution persists a narrative execution record and every act and
// input it carries in a single transaction — mirroring the ownership
// invariant that a narrative execution exclusively owns its acts, and
// acts exclusively own their inputs. It assigns and returns
// the execution's generated id.
func (s *Store) SaveExecution(ctx context.Context, rec narrative.ExecutionRecord) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonConnection, err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO narrative_executions (name, description, started_at, completed_at, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		rec.NarrativeName, nullableString(rec.NarrativeDesc), rec.StartedAt, nullableTime(rec.CompletedAt), string(rec.Status), nullableString(rec.Error),
	).Scan(&id)
	if err != nil {
		return "", narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}

	for _, act := range rec.Acts {
		var actID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO act_executions (execution_id, act_name, sequence_number, model, temperature, max_tokens, response, started_at, completed_at, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			id, act.ActName, act.Sequence, nullableString(act.Model), act.Temperature, act.MaxTokens, act.Response,
			nullableTime(act.StartedAt), nullableTime(act.CompletedAt), nullableString(act.Error),
		).Scan(&actID)
		if err != nil {
			return "", narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
		}

		for order, in := range act.Inputs {
			if err := insertActInput(ctx, tx, actID, order, in); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return fmt.Sprintf("%d", id), nil
}

func insertActInput(ctx context.Context, tx pgx.Tx, actID int64, order int, in narrative.Input) error {
	var (
		text, mimeType, sourceKind, url, base64Data, filename string
		binaryData                                            []byte
	)
	text = in.Text
	mimeType = in.MIMEType
	filename = in.Filename

	switch in.Kind {
	case narrative.InputMedia:
		sourceKind = string(in.Source.Kind)
		url = in.Source.URL
		base64Data = in.Source.Base64
		binaryData = in.Source.Buffer
		if in.Source.Kind == narrative.MediaSourceFile {
			url = in.Source.Path
		}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO act_inputs (act_id, input_order, input_type, text_content, mime_type, source_kind, url, base64_data, binary_data, filename)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		actID, order, string(in.Kind), nullableString(text), nullableString(mimeType), nullableString(sourceKind),
		nullableString(url), nullableString(base64Data), binaryData, nullableString(filename),
	)
	if err != nil {
		return narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return nil
}

// GetExecution loads a narrative execution and all of its acts by id.
// Act inputs are not loaded, and neither are an act's start/completion
// times or error message: those ActExecution fields stay empty.
func (s *Store) GetExecution(ctx context.Context, id string) (narrative.ExecutionRecord, error) {
	var rec narrative.ExecutionRecord
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return rec, narrataerrors.New(narrataerrors.KindStorageFailure, narrataerrors.ReasonNotFound, fmt.Sprintf("invalid execution id %q", id))
	}
	var status string
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), started_at, COALESCE(completed_at, started_at), status, COALESCE(error_message, '')
		FROM narrative_executions WHERE id = $1`, numericID)
	var dbID int64
	if err := row.Scan(&dbID, &rec.NarrativeName, &rec.NarrativeDesc, &rec.StartedAt, &rec.CompletedAt, &status, &rec.Error); err != nil {
		if err == pgx.ErrNoRows {
			return rec, narrataerrors.New(narrataerrors.KindStorageFailure, narrataerrors.ReasonNotFound, fmt.Sprintf("execution %s not found", id))
		}
		return rec, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	rec.ID = fmt.Sprintf("%d", dbID)
	rec.Status = narrative.Status(status)

	actRows, err := s.pool.Query(ctx, `
		SELECT id, act_name, sequence_number, COALESCE(model, ''), COALESCE(temperature, 0), COALESCE(max_tokens, 0), COALESCE(response, '')
		FROM act_executions WHERE execution_id = $1 ORDER BY sequence_number`, dbID)
	if err != nil {
		return rec, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	defer actRows.Close()

	for actRows.Next() {
		var (
			actID int64
			act   narrative.ActExecution
		)
		if err := actRows.Scan(&actID, &act.ActName, &act.Sequence, &act.Model, &act.Temperature, &act.MaxTokens, &act.Response); err != nil {
			return rec, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
		}
		rec.Acts = append(rec.Acts, act)
	}
	if err := actRows.Err(); err != nil {
		return rec, narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return rec, nil
}

// DeleteExecution deletes a narrative execution. ON DELETE CASCADE on
// act_executions and act_inputs enforces the invariant that
// deleting a narrative execution cascades to its acts and their inputs.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return narrataerrors.New(narrataerrors.KindStorageFailure, narrataerrors.ReasonNotFound, fmt.Sprintf("invalid execution id %q", id))
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM narrative_executions WHERE id = $1`, numericID); err != nil {
		return narrataerrors.Wrap(narrataerrors.KindStorageFailure, narrataerrors.ReasonQuery, err)
	}
	return nil
}
