package resolve

import (
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"narrata/internal/narrative"
)

func TestBuildTableQueryBasic(t *testing.T) {
	input := narrative.Input{
		Kind:      narrative.InputTable,
		TableName: "posts",
		Columns:   []string{"id", "title"},
		Where:     "status = 'published'",
		OrderBy:   "id desc",
		Limit:     10,
		Offset:    5,
	}
	query, args, err := buildTableQuery(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `SELECT "id", "title" FROM "posts" WHERE status = 'published' ORDER BY id desc LIMIT $1 OFFSET $2`
	if query != want {
		t.Fatalf("got query %q, want %q", query, want)
	}
	if len(args) != 2 || args[0] != 10 || args[1] != 5 {
		t.Fatalf("got args %+v", args)
	}
}

func TestBuildTableQueryRejectsInvalidTableName(t *testing.T) {
	_, _, err := buildTableQuery(narrative.Input{TableName: "posts; drop table users"})
	if err == nil {
		t.Fatal("expected an error for an invalid table name")
	}
}

func TestBuildTableQueryRejectsInvalidColumn(t *testing.T) {
	_, _, err := buildTableQuery(narrative.Input{TableName: "posts", Columns: []string{"id; drop table users"}})
	if err == nil {
		t.Fatal("expected an error for an invalid column name")
	}
}

func TestSafeWhereRejectsStatementSmuggling(t *testing.T) {
	cases := []string{
		"id = 1; DROP TABLE posts",
		"id = 1 -- comment",
		"1=1 or DROP table posts",
	}
	for _, c := range cases {
		if safeWhere(c) {
			t.Errorf("expected %q to be rejected", c)
		}
	}
	if !safeWhere("status = 'published' and id > 5") {
		t.Error("expected an ordinary predicate to pass")
	}
}

func TestSafeOrderByRejectsNonIdentifierCharacters(t *testing.T) {
	if safeOrderBy("id; drop table posts") {
		t.Fatal("expected rejection")
	}
	if !safeOrderBy("id desc, created_at asc") {
		t.Fatal("expected an ordinary order by clause to pass")
	}
}

func TestUndefinedColumnDetectsSQLState42703(t *testing.T) {
	err := &pgconn.PgError{Code: "42703", Message: "column \"missing\" does not exist"}
	if !undefinedColumn(err) {
		t.Fatal("expected undefinedColumn to recognize SQLSTATE 42703")
	}
	if undefinedColumn(&pgconn.PgError{Code: "42P01"}) {
		t.Fatal("expected a different SQLSTATE to not match")
	}
}

func TestRenderJSONProducesArray(t *testing.T) {
	result := tableResult{Columns: []string{"id"}, Rows: []map[string]any{{"id": int64(1)}, {"id": int64(2)}}}
	out, err := renderTable(result, narrative.FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "\"id\": 1") || !strings.Contains(out, "\"id\": 2") {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestRenderJSONEmptyResultIsEmptyArray(t *testing.T) {
	out, err := renderTable(tableResult{}, narrative.FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("got %q, want []", out)
	}
}

func TestRenderMarkdownHeaderAndRows(t *testing.T) {
	result := tableResult{
		Columns: []string{"id", "title"},
		Rows: []map[string]any{
			{"id": int64(1), "title": "hello"},
		},
	}
	out := renderMarkdown(result)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), out)
	}
	if lines[0] != "| id | title |" {
		t.Fatalf("got header %q", lines[0])
	}
	if lines[2] != "| 1 | hello |" {
		t.Fatalf("got row %q", lines[2])
	}
}

func TestRenderCSVQuotesSpecialCharacters(t *testing.T) {
	result := tableResult{
		Columns: []string{"id", "note"},
		Rows: []map[string]any{
			{"id": int64(1), "note": "has, a comma"},
			{"id": int64(2), "note": "has \"quotes\""},
		},
	}
	out, err := renderCSV(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"has, a comma"`) {
		t.Fatalf("expected comma cell to be quoted, got %q", out)
	}
	if !strings.Contains(out, `"has ""quotes"""`) {
		t.Fatalf("expected embedded quotes to be doubled, got %q", out)
	}
}
