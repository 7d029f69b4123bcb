package postgres

import (
	"context"
	"testing"
)

func testSnapshot() *SchemaSnapshot {
	return &SchemaSnapshot{
		Tables: []TableInfo{
			{
				Schema: "public",
				Name:   "employees",
				Columns: []ColumnInfo{
					{Name: "id", DataType: "integer"},
					{Name: "department", DataType: "text"},
					{Name: "hired_at", DataType: "timestamp without time zone"},
				},
			},
			{
				Schema: "public",
				Name:   "departments",
				Columns: []ColumnInfo{
					{Name: "id", DataType: "integer"},
					{Name: "name", DataType: "text"},
				},
			},
		},
	}
}

func TestFindTable(t *testing.T) {
	snapshot := testSnapshot()

	if _, ok := findTable(snapshot, "public.employees"); !ok {
		t.Error("expected public.employees to be found")
	}
	if _, ok := findTable(snapshot, "public.missing"); ok {
		t.Error("expected public.missing not to be found")
	}
}

func TestDateColumn(t *testing.T) {
	snapshot := testSnapshot()

	employees, _ := findTable(snapshot, "public.employees")
	col, ok := dateColumn(employees)
	if !ok || col != "hired_at" {
		t.Errorf("dateColumn(employees) = %q, %v, want %q, true", col, ok, "hired_at")
	}

	departments, _ := findTable(snapshot, "public.departments")
	if _, ok := dateColumn(departments); ok {
		t.Error("departments has no date/timestamp column, want false")
	}
}

// TestMisunderstandingHintSkipsWithoutSignal documents the cases where
// misunderstandingHint must resolve to false without ever touching the
// database -- a question with no year, or a query that never touched a
// table with a date column -- which a zero-row "no rows matched" answer
// (spec §4.4 step 6) should fall back to instead of a clarifying question.
func TestMisunderstandingHintSkipsWithoutSignal(t *testing.T) {
	snapshot := testSnapshot()

	cases := []struct {
		name       string
		question   string
		tablesUsed []string
	}{
		{"no year in the question", "how many employees are in Sales", []string{"public.employees"}},
		{"no tables used", "how many employees were hired in 2030", nil},
		{"table has no date column", "how many departments existed in 2030", []string{"public.departments"}},
		{"table not in snapshot", "how many widgets shipped in 2030", []string{"public.widgets"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := misunderstandingHint(context.Background(), nil, tc.question, snapshot, tc.tablesUsed); got {
				t.Errorf("misunderstandingHint(%q) = true, want false", tc.question)
			}
		})
	}
}
