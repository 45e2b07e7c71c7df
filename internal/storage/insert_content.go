package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/observability"
)

// InsertContent inserts one row into table from a JSON object, matching
// JSON keys to destination columns and coercing values per the
// "Row insertion" algorithm. model may be empty.
func (s *Store) InsertContent(ctx context.Context, table, jsonObject, narrativeName, actName, model string) error {
	if !validIdentifier(table) {
		return narrataerrors.New(narrataerrors.KindContentGeneration, narrataerrors.ReasonInvalidQuery, "table name is not a valid identifier")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonObject), &obj); err != nil {
		return narrataerrors.New(narrataerrors.KindContentGeneration, narrataerrors.ReasonInvalidQuery, "content must be a JSON object")
	}

	cols, err := s.reflectColumns(ctx, table)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(cols)+4)
	values := make([]string, 0, len(cols)+4)

	for _, col := range cols {
		if isStandardMetadataColumn(col.Name) {
			continue
		}
		value, matched := matchColumn(obj, col.Name)
		if !matched {
			if !col.Nullable && !col.HasDefault {
				observability.LoggerWithTrace(ctx).Warn().Str("table", table).Str("column", col.Name).
					Msg("content generation: required column not covered by content, inserting NULL")
			}
			names = append(names, col.Name)
			values = append(values, "NULL")
			continue
		}
		names = append(names, col.Name)
		values = append(values, coerceLiteral(value, col.DataType))
	}

	// metadata columns, appended after content columns.
	names = append(names, "source_narrative", "source_act", "generated_at")
	values = append(values, sqlString(narrativeName), sqlString(actName), "now()")
	if model != "" {
		names = append(names, "generation_model")
		values = append(values, sqlString(model))
	}

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(quoted, ", "), strings.Join(values, ", "))
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return narrataerrors.Wrap(narrataerrors.KindContentGeneration, narrataerrors.ReasonQuery, err)
	}
	return nil
}

func isStandardMetadataColumn(name string) bool {
	switch strings.ToLower(name) {
	case "id", "generated_at", "source_narrative", "source_act", "generation_model", "review_status", "tags", "rating":
		return true
	default:
		return false
	}
}

// matchColumn implements the fuzzy lookup order: exact
// name, lowercase, snake_case, camelCase.
func matchColumn(obj map[string]any, column string) (any, bool) {
	candidates := []string{column, strings.ToLower(column), toSnakeCase(column), toCamelCase(column)}
	for _, c := range candidates {
		if v, ok := obj[c]; ok {
			return v, true
		}
	}
	return nil, false
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) < 2 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// coerceLiteral renders value as a SQL literal appropriate for dataType,
// per the destination-type coercion table below.
func coerceLiteral(value any, dataType string) string {
	if value == nil {
		return "NULL"
	}

	t := strings.ToLower(dataType)
	switch {
	case strings.Contains(t, "int"):
		return coerceIntLiteral(value)
	case strings.Contains(t, "double") || strings.Contains(t, "real") || strings.Contains(t, "numeric"):
		return coerceFloatLiteral(value)
	case t == "boolean":
		return coerceBoolLiteral(value)
	case strings.Contains(t, "json"):
		b, _ := json.Marshal(value)
		return sqlString(string(b)) + "::jsonb"
	case strings.HasSuffix(t, "[]") || strings.HasPrefix(t, "array"):
		return coerceArrayLiteral(value)
	case strings.Contains(t, "char") || strings.Contains(t, "text"):
		return coerceTextLiteral(value)
	default:
		return coerceTextLiteral(value)
	}
}

func coerceIntLiteral(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return strconv.FormatInt(n, 10)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return strconv.FormatInt(int64(f), 10)
		}
		return "NULL"
	default:
		return "NULL"
	}
}

func coerceFloatLiteral(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "NULL"
	default:
		return "NULL"
	}
}

func coerceBoolLiteral(value any) string {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatBool(v != 0)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "1":
			return "true"
		default:
			return "false"
		}
	default:
		return "false"
	}
}

func coerceTextLiteral(value any) string {
	switch v := value.(type) {
	case string:
		return sqlString(v)
	case float64:
		return sqlString(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		return sqlString(strconv.FormatBool(v))
	default:
		b, _ := json.Marshal(v)
		return sqlString(string(b))
	}
}

func coerceArrayLiteral(value any) string {
	arr, ok := value.([]any)
	if !ok {
		return "NULL"
	}
	elems := make([]string, len(arr))
	for i, e := range arr {
		elems[i] = coerceTextLiteral(e)
	}
	return "ARRAY[" + strings.Join(elems, ", ") + "]"
}

// sqlString quotes a value as a SQL string literal, doubling embedded
// single quotes (string values are SQL-escaped by doubling
// '").
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
