package postgres

import "testing"

func testGate() *SafetyGate {
	return &SafetyGate{AllowedSchemas: map[string]bool{"public": true, "hr": true}}
}

func TestSafetyGateCheck(t *testing.T) {
	cases := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"plain select passes", "SELECT id, name FROM public.employees", false},
		{"select with trailing semicolon passes", "SELECT id FROM public.employees;", false},
		{"unqualified identifier passes", "SELECT count(*) FROM employees", false},
		{"update rejected", "UPDATE public.employees SET salary = 0", true},
		{"delete rejected", "DELETE FROM public.employees", true},
		{"drop rejected", "DROP TABLE public.employees", true},
		{"stacked statements rejected", "SELECT 1; DROP TABLE public.employees", true},
		{"no select rejected", "TABLE public.employees", true},
		{"disallowed schema rejected", "SELECT * FROM pg_catalog.pg_tables", true},
		{"schema outside allow-list rejected", "SELECT * FROM finance.ledger", true},
		{"keyword inside string literal is not flagged", "SELECT * FROM public.employees WHERE name = 'DROP the mic'", false},
		{"keyword inside dollar-quoted literal is not flagged", "SELECT $q$DROP TABLE x$q$ AS note FROM public.employees", false},
		{"aliased column reference is not mistaken for a schema", "SELECT e.name, d.department FROM public.employees e JOIN public.departments d ON e.dept_id = d.id", false},
		{"joined table in disallowed schema still rejected", "SELECT e.name FROM public.employees e JOIN finance.ledger l ON e.id = l.employee_id", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := testGate().Check(tc.sql)
			if tc.wantErr && err == nil {
				t.Errorf("Check(%q) = nil, want a violation", tc.sql)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Check(%q) = %v, want nil", tc.sql, err)
			}
		})
	}
}

func TestNewSafetyGateDefaultsToSnapshotSchemas(t *testing.T) {
	snapshot := &SchemaSnapshot{Tables: []TableInfo{
		{Schema: "Public", Name: "employees"},
		{Schema: "hr", Name: "departments"},
	}}

	gate := NewSafetyGate(snapshot)

	if !gate.AllowedSchemas["public"] {
		t.Error("expected schema names to be lowercased into the allow-list")
	}
	if !gate.AllowedSchemas["hr"] {
		t.Error("expected hr schema to be in the allow-list")
	}
}
