package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	narrataerrors "narrata/internal/errors"
)

// metadataColumns are the standard columns every content-generation
// destination table carries, appended after the table's own columns.
var metadataColumns = map[string]string{
	"generated_at":     "TIMESTAMPTZ NOT NULL DEFAULT now()",
	"source_narrative": "TEXT",
	"source_act":       "TEXT",
	"generation_model": "TEXT",
	"review_status":    "TEXT DEFAULT 'pending'",
	"tags":             "TEXT[]",
	"rating":           "INTEGER",
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// StartGeneration creates a tracking row for a new content-generation run,
// marked running. Duplicate calls for the same table are idempotent: the
// existing row is set back to running and its updated_at refreshed.
func (s *Store) StartGeneration(ctx context.Context, table, templateSource, narrativeFile, description string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_generation_tables (table_name, template_source, narrative_file, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'running', now(), now())
		ON CONFLICT (table_name) DO UPDATE SET status = 'running', updated_at = now()`,
		table, templateSource, nullableString(narrativeFile), nullableString(description),
	)
	if err != nil {
		s.logQueryWarning(ctx, "StartGeneration", err)
		return narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
	}
	return nil
}

// CompleteGeneration updates the tracking row with the run's final
// outcome.
func (s *Store) CompleteGeneration(ctx context.Context, table string, rowCount, durationMS int64, status, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE content_generation_tables
		SET status = $2, row_count = $3, duration_ms = $4, error_message = $5, updated_at = now()
		WHERE table_name = $1`,
		table, status, rowCount, durationMS, nullableString(errMsg),
	)
	if err != nil {
		return narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
	}
	return nil
}

// CreateTableFromTemplate copies a template table's schema and appends
// the standard metadata columns, using CREATE TABLE IF NOT EXISTS
// semantics.
func (s *Store) CreateTableFromTemplate(ctx context.Context, table, templateTable string) error {
	if !validIdentifier(table) || !validIdentifier(templateTable) {
		return narrataerrors.New(narrataerrors.KindContentGeneration, narrataerrors.ReasonInvalidQuery, "table name is not a valid identifier")
	}

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	stmt := fmt.Sprintf(`CREATE TABLE %s (LIKE %s INCLUDING ALL)`, quoteIdent(table), quoteIdent(templateTable))
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
	}

	existing, err := s.reflectColumns(ctx, table)
	if err != nil {
		return err
	}
	return s.addMissingMetadataColumns(ctx, table, existing)
}

// CreateTableFromInference infers a schema from sample_json and creates
// the table with the inferred columns plus metadata columns, skipping any
// metadata column already present in the inferred schema.
func (s *Store) CreateTableFromInference(ctx context.Context, table, sampleJSON string) error {
	if !validIdentifier(table) {
		return narrataerrors.New(narrataerrors.KindContentGeneration, narrataerrors.ReasonInvalidQuery, "table name is not a valid identifier")
	}

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	schema, err := InferSchema(sampleJSON)
	if err != nil {
		return err
	}

	var cols []string
	cols = append(cols, "id BIGSERIAL PRIMARY KEY")
	for name, def := range schema {
		if !validIdentifier(name) {
			continue
		}
		if _, isMetadata := metadataColumns[strings.ToLower(name)]; isMetadata {
			continue
		}
		nullClause := ""
		if !def.Nullable {
			nullClause = " NOT NULL"
		}
		cols = append(cols, fmt.Sprintf("%s %s%s", quoteIdent(name), def.SQLType, nullClause))
	}
	for name, ddl := range metadataColumns {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(name), ddl))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdent(table), strings.Join(cols, ",\n\t"))
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
	}
	return nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
	if err != nil {
		return false, narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
	}
	return exists, nil
}

// reflectedColumn is one column of a reflected destination table: its
// name, declared SQL type, and whether it may be omitted from an INSERT
// (nullable, or has a default).
type reflectedColumn struct {
	Name       string
	DataType   string
	Nullable   bool
	HasDefault bool
}

func (s *Store) reflectColumns(ctx context.Context, table string) ([]reflectedColumn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES', column_default IS NOT NULL
		FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
	}
	defer rows.Close()

	var cols []reflectedColumn
	for rows.Next() {
		var c reflectedColumn
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.HasDefault); err != nil {
			return nil, narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (s *Store) addMissingMetadataColumns(ctx context.Context, table string, existing []reflectedColumn) error {
	have := map[string]bool{}
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = true
	}
	for name, ddl := range metadataColumns {
		if have[name] {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`, quoteIdent(table), quoteIdent(name), ddl)
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
		}
	}
	return nil
}
