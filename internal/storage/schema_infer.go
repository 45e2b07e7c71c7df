package storage

import (
	"encoding/json"

	narrataerrors "narrata/internal/errors"
)

// ColumnType is one of the small closed set of storage types allowed
// for an inferred column: integer, floating, boolean, text, json-blob,
// or an array of any of the above.
type ColumnType string

const (
	ColInteger  ColumnType = "BIGINT"
	ColFloating ColumnType = "DOUBLE PRECISION"
	ColBoolean  ColumnType = "BOOLEAN"
	ColText     ColumnType = "TEXT"
	ColJSON     ColumnType = "JSONB"
)

// ArrayType returns the PostgreSQL array type name for an element type.
func ArrayType(elem ColumnType) ColumnType {
	return elem + "[]"
}

// ColumnDef is the inferred definition of one destination column.
type ColumnDef struct {
	SQLType  ColumnType
	Nullable bool
}

// InferSchema infers a table schema from sample JSON: the input is
// either a JSON object (one row) or a JSON array of objects (many rows);
// an empty array is an error. Types are inferred per-field per-row and
// widened across rows by the lattice documented there.
func InferSchema(sampleJSON string) (map[string]ColumnDef, error) {
	rows, err := decodeSampleRows(sampleJSON)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, narrataerrors.New(narrataerrors.KindContentGeneration, narrataerrors.ReasonSchemaInference, "sample is an empty array")
	}

	// A null observation only marks the column nullable; nullOnly tracks
	// columns seen so far only as null, whose placeholder TEXT type gives
	// way to the first non-null type observed.
	schema := map[string]ColumnDef{}
	nullOnly := map[string]bool{}
	for _, row := range rows {
		for field, value := range row {
			col := inferFieldType(value)
			existing, ok := schema[field]
			switch {
			case !ok:
				schema[field] = col
				nullOnly[field] = value == nil
			case value == nil:
				existing.Nullable = true
				schema[field] = existing
			case nullOnly[field]:
				col.Nullable = true
				schema[field] = col
				nullOnly[field] = false
			default:
				schema[field] = widen(existing, col)
			}
		}
	}
	return schema, nil
}

func decodeSampleRows(sampleJSON string) ([]map[string]any, error) {
	var asObject map[string]any
	if err := json.Unmarshal([]byte(sampleJSON), &asObject); err == nil {
		return []map[string]any{asObject}, nil
	}

	var asArray []map[string]any
	if err := json.Unmarshal([]byte(sampleJSON), &asArray); err == nil {
		return asArray, nil
	}

	return nil, narrataerrors.New(narrataerrors.KindContentGeneration, narrataerrors.ReasonInvalidQuery, "sample must be a JSON object or array of objects")
}

func inferFieldType(value any) ColumnDef {
	switch v := value.(type) {
	case nil:
		return ColumnDef{SQLType: ColText, Nullable: true}
	case bool:
		return ColumnDef{SQLType: ColBoolean}
	case string:
		return ColumnDef{SQLType: ColText}
	case float64:
		if v == float64(int64(v)) {
			return ColumnDef{SQLType: ColInteger}
		}
		return ColumnDef{SQLType: ColFloating}
	case []any:
		if len(v) == 0 {
			return ColumnDef{SQLType: ColJSON, Nullable: true}
		}
		elem := inferFieldType(v[0])
		switch elem.SQLType {
		case ColJSON:
			return ColumnDef{SQLType: ColJSON}
		default:
			return ColumnDef{SQLType: ArrayType(elem.SQLType)}
		}
	case map[string]any:
		return ColumnDef{SQLType: ColJSON}
	default:
		return ColumnDef{SQLType: ColText}
	}
}

// widen applies the type-widening lattice when the same field
// is observed with two different inferred types across rows.
func widen(a, b ColumnDef) ColumnDef {
	nullable := a.Nullable || b.Nullable
	if a.SQLType == b.SQLType {
		return ColumnDef{SQLType: a.SQLType, Nullable: nullable}
	}

	widenScalar := func(x, y ColumnType) (ColumnType, bool) {
		switch {
		case x == ColInteger && y == ColFloating, x == ColFloating && y == ColInteger:
			return ColFloating, true
		default:
			return "", false
		}
	}

	if t, ok := widenScalar(a.SQLType, b.SQLType); ok {
		return ColumnDef{SQLType: t, Nullable: nullable}
	}

	isArray := func(t ColumnType) bool { return len(t) > 2 && t[len(t)-2:] == "[]" }
	if isArray(a.SQLType) && isArray(b.SQLType) {
		if a.SQLType == b.SQLType {
			return ColumnDef{SQLType: a.SQLType, Nullable: nullable}
		}
		return ColumnDef{SQLType: ColJSON, Nullable: nullable}
	}
	if isArray(a.SQLType) || isArray(b.SQLType) {
		return ColumnDef{SQLType: ColJSON, Nullable: nullable}
	}

	if a.SQLType == ColJSON || b.SQLType == ColJSON {
		return ColumnDef{SQLType: ColJSON, Nullable: nullable}
	}
	if a.SQLType == ColText || b.SQLType == ColText {
		return ColumnDef{SQLType: ColText, Nullable: nullable}
	}
	if a.SQLType == ColBoolean || b.SQLType == ColBoolean {
		return ColumnDef{SQLType: ColText, Nullable: nullable}
	}

	return ColumnDef{SQLType: ColText, Nullable: nullable}
}
