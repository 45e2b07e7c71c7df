package storage

import "testing"

func TestInferSchemaSingleObject(t *testing.T) {
	schema, err := InferSchema(`{"name": "ok", "count": 3, "score": 1.5, "active": true, "tags": ["a", "b"], "meta": {"x": 1}, "note": null}`)
	if err != nil {
		t.Fatalf("InferSchema: %v", err)
	}
	cases := map[string]ColumnType{
		"name":   ColText,
		"count":  ColInteger,
		"score":  ColFloating,
		"active": ColBoolean,
		"tags":   ArrayType(ColText),
		"meta":   ColJSON,
	}
	for field, want := range cases {
		got, ok := schema[field]
		if !ok {
			t.Fatalf("missing field %q", field)
		}
		if got.SQLType != want {
			t.Fatalf("field %q: want %s, got %s", field, want, got.SQLType)
		}
	}
	if note, ok := schema["note"]; !ok || !note.Nullable {
		t.Fatalf("expected note field to be nullable text, got %+v", schema["note"])
	}
}

func TestInferSchemaWidensAcrossRows(t *testing.T) {
	schema, err := InferSchema(`[{"value": 3}, {"value": 1.5}]`)
	if err != nil {
		t.Fatalf("InferSchema: %v", err)
	}
	if schema["value"].SQLType != ColFloating {
		t.Fatalf("expected widening to DOUBLE PRECISION, got %s", schema["value"].SQLType)
	}
}

func TestInferSchemaWidensMismatchedArraysToJSON(t *testing.T) {
	schema, err := InferSchema(`[{"value": ["a"]}, {"value": [1]}]`)
	if err != nil {
		t.Fatalf("InferSchema: %v", err)
	}
	if schema["value"].SQLType != ColJSON {
		t.Fatalf("expected mismatched array element types to widen to JSONB, got %s", schema["value"].SQLType)
	}
}

func TestInferSchemaNullWidensToNullableWithoutChangingType(t *testing.T) {
	schema, err := InferSchema(`[{"value": "x"}, {"value": null}]`)
	if err != nil {
		t.Fatalf("InferSchema: %v", err)
	}
	if schema["value"].SQLType != ColText || !schema["value"].Nullable {
		t.Fatalf("expected text nullable, got %+v", schema["value"])
	}
}

func TestInferSchemaRejectsEmptyArray(t *testing.T) {
	if _, err := InferSchema(`[]`); err == nil {
		t.Fatal("expected error for empty array sample")
	}
}

func TestInferSchemaBooleanWidensToText(t *testing.T) {
	schema, err := InferSchema(`[{"value": true}, {"value": "maybe"}]`)
	if err != nil {
		t.Fatalf("InferSchema: %v", err)
	}
	if schema["value"].SQLType != ColText {
		t.Fatalf("expected boolean widened against anything else to TEXT, got %s", schema["value"].SQLType)
	}
}
