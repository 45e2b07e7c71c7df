package storage

import "testing"

func TestMatchColumnTriesExactLowerSnakeCamel(t *testing.T) {
	obj := map[string]any{"created_at": 1, "UserName": "a", "score": 2}
	if v, ok := matchColumn(obj, "created_at"); !ok || v != 1 {
		t.Fatalf("expected exact match, got %v %v", v, ok)
	}
	if v, ok := matchColumn(obj, "Score"); !ok || v != 2 {
		t.Fatalf("expected lowercase match, got %v %v", v, ok)
	}
	if _, ok := matchColumn(obj, "missing_field"); ok {
		t.Fatal("expected no match for unrelated column")
	}
}

func TestMatchColumnSnakeCaseVariant(t *testing.T) {
	obj := map[string]any{"user_name": "bob"}
	if v, ok := matchColumn(obj, "userName"); !ok || v != "bob" {
		t.Fatalf("expected snake_case lookup for camelCase column, got %v %v", v, ok)
	}
}

func TestMatchColumnCamelCaseVariant(t *testing.T) {
	obj := map[string]any{"userName": "bob"}
	if v, ok := matchColumn(obj, "user_name"); !ok || v != "bob" {
		t.Fatalf("expected camelCase lookup for snake_case column, got %v %v", v, ok)
	}
}

func TestCoerceLiteralInteger(t *testing.T) {
	if got := coerceLiteral(float64(5), "bigint"); got != "5" {
		t.Fatalf("expected 5, got %s", got)
	}
	if got := coerceLiteral("42", "integer"); got != "42" {
		t.Fatalf("expected parsed numeric string, got %s", got)
	}
	if got := coerceLiteral(true, "integer"); got != "1" {
		t.Fatalf("expected boolean true -> 1, got %s", got)
	}
	if got := coerceLiteral(3.9, "integer"); got != "3" {
		t.Fatalf("expected float truncated, got %s", got)
	}
}

func TestCoerceLiteralBoolean(t *testing.T) {
	cases := map[string]string{"true": "true", "yes": "true", "0": "false", "no": "false"}
	for in, want := range cases {
		if got := coerceBoolLiteral(in); got != want {
			t.Fatalf("coerceBoolLiteral(%q): want %s, got %s", in, want, got)
		}
	}
}

func TestCoerceLiteralText(t *testing.T) {
	if got := coerceLiteral("O'Brien", "text"); got != "'O''Brien'" {
		t.Fatalf("expected doubled quote escaping, got %s", got)
	}
}

func TestCoerceLiteralNullSource(t *testing.T) {
	if got := coerceLiteral(nil, "text"); got != "NULL" {
		t.Fatalf("expected NULL for nil source, got %s", got)
	}
}
