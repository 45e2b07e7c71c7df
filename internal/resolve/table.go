package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/narrative"
	"narrata/internal/observability"
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	orderByPattern    = regexp.MustCompile(`^[a-zA-Z0-9_ ,]+$`)
)

func validIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// safeWhere rejects the predicate substrings that would let a narrative
// file smuggle a second statement or a destructive verb into a filter
// clause. It is not a SQL parser — it is a coarse substring denylist, and
// it is the only check a WHERE clause passes before buildTableQuery
// splices it into the statement.
func safeWhere(where string) bool {
	lower := strings.ToLower(where)
	if strings.Contains(where, ";") {
		return false
	}
	if strings.Contains(where, "--") {
		return false
	}
	if strings.Contains(lower, "drop ") {
		return false
	}
	return true
}

func safeOrderBy(orderBy string) bool {
	return orderByPattern.MatchString(orderBy)
}

// undefinedColumn reports whether err is Postgres's undefined_column
// error (SQLSTATE 42703): a table reference naming a column that no
// longer exists degrades to an empty, logged result rather than failing
// the act.
func undefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42703"
}

// buildTableQuery assembles a parameterized SELECT from a table-reference
// input, validating every identifier and clause along the way.
func buildTableQuery(input narrative.Input) (string, []any, error) {
	if !validIdentifier(input.TableName) {
		return "", nil, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, "invalid table name: "+input.TableName)
	}

	cols := "*"
	if len(input.Columns) > 0 {
		quoted := make([]string, len(input.Columns))
		for i, c := range input.Columns {
			if !validIdentifier(c) {
				return "", nil, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, "invalid column name: "+c)
			}
			quoted[i] = quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quoteIdent(input.TableName))

	if input.Where != "" {
		if !safeWhere(input.Where) {
			return "", nil, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, "where clause rejected by sanitizer")
		}
		b.WriteString(" WHERE ")
		b.WriteString(input.Where)
	}

	if input.OrderBy != "" {
		if !safeOrderBy(input.OrderBy) {
			return "", nil, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonInvalidQuery, "order by clause rejected by sanitizer")
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(input.OrderBy)
	}

	var args []any
	if input.Limit > 0 {
		args = append(args, input.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if input.Offset > 0 {
		args = append(args, input.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}

	return b.String(), args, nil
}

// tableResult is a query's rows plus their column order, kept separate from
// a plain map so markdown rendering can reproduce the SELECT's column
// order instead of Go's unspecified map iteration order.
type tableResult struct {
	Columns []string
	Rows    []map[string]any
}

func (r *Resolver) resolveTable(ctx context.Context, input narrative.Input) (Resolved, error) {
	if r.Table == nil {
		return Resolved{}, narrataerrors.New(narrataerrors.KindInputResolution, narrataerrors.ReasonTableNotFound, "no table querier configured for "+input.TableName)
	}

	query, args, err := buildTableQuery(input)
	if err != nil {
		return Resolved{}, err
	}

	result, err := r.runTableQuery(ctx, query, args)
	if err != nil {
		if undefinedColumn(err) {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Str("table", input.TableName).
				Msg("table reference named a non-existent column, resolving to empty result")
			result = tableResult{}
		} else {
			return Resolved{}, narrataerrors.Wrap(narrataerrors.KindInputResolution, narrataerrors.ReasonQuery, err)
		}
	}

	text, err := renderTable(result, input.Format)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Text: text}, nil
}

func (r *Resolver) runTableQuery(ctx context.Context, query string, args []any) (tableResult, error) {
	rows, err := r.Table.Query(ctx, query, args...)
	if err != nil {
		return tableResult{}, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	var result tableResult
	result.Columns = columns
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return tableResult{}, err
		}
		row := make(map[string]any, len(vals))
		for i, col := range columns {
			row[col] = vals[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if rows.Err() != nil {
		return tableResult{}, rows.Err()
	}
	return result, nil
}
