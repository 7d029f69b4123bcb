package postgres

import "testing"

func TestBoundedSQL(t *testing.T) {
	cases := []struct {
		name        string
		sql         string
		maxRows     int
		wantSQL     string
		wantInjected bool
	}{
		{
			name:        "no limit gets one injected",
			sql:         "SELECT id FROM public.employees",
			maxRows:     10,
			wantSQL:     "SELECT id FROM public.employees LIMIT 11",
			wantInjected: true,
		},
		{
			name:        "existing limit at maxRows is left alone",
			sql:         "SELECT id FROM public.employees LIMIT 10",
			maxRows:     10,
			wantSQL:     "SELECT id FROM public.employees LIMIT 10",
			wantInjected: false,
		},
		{
			name:        "existing limit under maxRows is left alone",
			sql:         "SELECT id FROM public.employees LIMIT 3",
			maxRows:     10,
			wantSQL:     "SELECT id FROM public.employees LIMIT 3",
			wantInjected: false,
		},
		{
			name:        "existing limit over maxRows is replaced with maxRows+1",
			sql:         "SELECT id FROM public.employees LIMIT 1000",
			maxRows:     10,
			wantSQL:     "SELECT id FROM public.employees LIMIT 11",
			wantInjected: true,
		},
		{
			name:        "trailing semicolon is stripped before limit is appended",
			sql:         "SELECT id FROM public.employees;",
			maxRows:     5,
			wantSQL:     "SELECT id FROM public.employees LIMIT 6",
			wantInjected: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotSQL, gotInjected := boundedSQL(tc.sql, tc.maxRows)
			if gotSQL != tc.wantSQL {
				t.Errorf("boundedSQL(%q, %d) sql = %q, want %q", tc.sql, tc.maxRows, gotSQL, tc.wantSQL)
			}
			if gotInjected != tc.wantInjected {
				t.Errorf("boundedSQL(%q, %d) injected = %v, want %v", tc.sql, tc.maxRows, gotInjected, tc.wantInjected)
			}
		})
	}
}

// TestExecuteTruncationDecision documents the row-cap boundary invariant
// at the level execute relies on: when boundedSQL injects maxRows+1 and the
// database returns that extra row, execute trims it and sets Truncated; if
// exactly maxRows rows exist, the extra row never comes back and Truncated
// stays false. execute itself needs a live pgxpool.Pool to exercise end to
// end, so only the boundedSQL half is covered directly here.
func TestExecuteTruncationDecision(t *testing.T) {
	sql, injected := boundedSQL("SELECT id FROM public.employees", 2)
	if !injected {
		t.Fatal("expected a limit to be injected")
	}
	if sql != "SELECT id FROM public.employees LIMIT 3" {
		t.Fatalf("got %q, want a LIMIT 3 (maxRows+1)", sql)
	}
}
