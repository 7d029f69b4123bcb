// Package postgres is the PostgreSQL question-answering agent (spec §4.4):
// schema introspection, NL→SQL generation, a hard-reject safety gate,
// bounded execution, and rendering. It is grounded on postgres_agent.py's
// SchemaRegistry/SQLGenerator/DatabaseManager/ResponseFormatter pipeline,
// translated to live information_schema introspection over the teacher's
// pgx pool instead of a hardcoded table dictionary.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// ColumnInfo is one column of one table in a SchemaSnapshot.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

// TableInfo is one table or view, its columns, and row-count estimate.
type TableInfo struct {
	Schema        string
	Name          string
	Columns       []ColumnInfo
	PrimaryKeys   []string
	ForeignKeys   []string
	EstimatedRows int64
}

// QualifiedName returns "schema.table", the form used in generated SQL.
func (t TableInfo) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// SchemaSnapshot is one tenant's introspected schema as of CapturedAt (spec
// §3 SchemaSnapshot). It is immutable once built.
type SchemaSnapshot struct {
	Tables     []TableInfo
	CapturedAt time.Time
}

const snapshotTTL = 10 * time.Minute

// schemaCacheEntry pairs a snapshot with the time it was captured so TTL
// expiry can be checked without a second map lookup.
type schemaCacheEntry struct {
	snapshot  *SchemaSnapshot
	capturedAt time.Time
}

// SchemaCache holds one snapshot per tenant with single-flighted refresh
// (spec §5 "only one introspection in flight per tenant; others await its
// result"), the idiomatic Go analogue of a lock plus a refresh flag.
type SchemaCache struct {
	mu      sync.RWMutex
	entries map[string]schemaCacheEntry
	group   singleflight.Group
}

func NewSchemaCache() *SchemaCache {
	return &SchemaCache{entries: make(map[string]schemaCacheEntry)}
}

// Get returns the tenant's schema snapshot, introspecting on miss or TTL
// expiry. Concurrent callers for the same tenant share one introspection.
func (c *SchemaCache) Get(ctx context.Context, tenantID string, pool *pgxpool.Pool) (*SchemaSnapshot, error) {
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && time.Since(entry.capturedAt) < snapshotTTL {
		return entry.snapshot, nil
	}

	result, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		snapshot, err := introspect(ctx, pool)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[tenantID] = schemaCacheEntry{snapshot: snapshot, capturedAt: time.Now()}
		c.mu.Unlock()
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*SchemaSnapshot), nil
}

// Invalidate drops a tenant's cached snapshot so the next Get introspects
// again. Nothing in the agent calls it: a schema-shape error seen by the
// safety gate or during execution leaves the snapshot in place until its
// TTL expires.
func (c *SchemaCache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}

func introspect(ctx context.Context, pool *pgxpool.Pool) (*SchemaSnapshot, error) {
	const tablesQuery = `
        SELECT t.table_schema, t.table_name
        FROM information_schema.tables t
        WHERE t.table_schema NOT IN ('pg_catalog', 'information_schema')
        ORDER BY t.table_schema, t.table_name
    `
	rows, err := pool.Query(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	type key struct{ schema, name string }
	var order []key
	func() {
		defer rows.Close()
		for rows.Next() {
			var k key
			if err := rows.Scan(&k.schema, &k.name); err != nil {
				continue
			}
			order = append(order, k)
		}
	}()

	tables := make([]TableInfo, 0, len(order))
	for _, k := range order {
		cols, err := introspectColumns(ctx, pool, k.schema, k.name)
		if err != nil {
			return nil, err
		}
		pk, err := introspectPrimaryKeys(ctx, pool, k.schema, k.name)
		if err != nil {
			return nil, err
		}
		estRows, err := introspectRowEstimate(ctx, pool, k.schema, k.name)
		if err != nil {
			estRows = -1 // estimate failures are not fatal to introspection
		}

		tables = append(tables, TableInfo{
			Schema:        k.schema,
			Name:          k.name,
			Columns:       cols,
			PrimaryKeys:   pk,
			EstimatedRows: estRows,
		})
	}

	return &SchemaSnapshot{Tables: tables, CapturedAt: time.Now()}, nil
}

func introspectColumns(ctx context.Context, pool *pgxpool.Pool, schema, table string) ([]ColumnInfo, error) {
	const query = `
        SELECT column_name, data_type, is_nullable = 'YES'
        FROM information_schema.columns
        WHERE table_schema = $1 AND table_name = $2
        ORDER BY ordinal_position
    `
	rows, err := pool.Query(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func introspectPrimaryKeys(ctx context.Context, pool *pgxpool.Pool, schema, table string) ([]string, error) {
	const query = `
        SELECT a.attname
        FROM pg_index i
        JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
        WHERE i.indrelid = (quote_ident($1) || '.' || quote_ident($2))::regclass
          AND i.indisprimary
    `
	rows, err := pool.Query(ctx, query, schema, table)
	if err != nil {
		// An unrecognized relation (e.g. a view with no PK) is not fatal.
		return nil, nil
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		pk = append(pk, name)
	}
	return pk, nil
}

func introspectRowEstimate(ctx context.Context, pool *pgxpool.Pool, schema, table string) (int64, error) {
	const query = `
        SELECT COALESCE(n_live_tup, 0)
        FROM pg_stat_user_tables
        WHERE schemaname = $1 AND relname = $2
    `
	var estimate int64
	err := pool.QueryRow(ctx, query, schema, table).Scan(&estimate)
	return estimate, err
}

// Summary renders the snapshot into the compact textual form SQL
// generation consumes, prioritizing tables most relevant to question by
// simple lowercase token overlap (spec §4.4 step 1), stable tie-break by
// qualified table name, capped at budgetBytes.
func (s *SchemaSnapshot) Summary(question string, budgetBytes int) string {
	ranked := rankTables(s.Tables, question)

	var b strings.Builder
	for _, t := range ranked {
		line := formatTableLine(t)
		if b.Len()+len(line) > budgetBytes {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

func formatTableLine(t TableInfo) string {
	colNames := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		colNames = append(colNames, c.Name)
	}
	return fmt.Sprintf("%s: %s\n", t.QualifiedName(), strings.Join(colNames, ", "))
}

func rankTables(tables []TableInfo, question string) []TableInfo {
	qTokens := tokenSet(tokenizeWords(question))

	type scored struct {
		table TableInfo
		score int
	}
	scoredTables := make([]scored, 0, len(tables))
	for _, t := range tables {
		scoredTables = append(scoredTables, scored{table: t, score: overlapScore(t, qTokens)})
	}

	sort.SliceStable(scoredTables, func(i, j int) bool {
		if scoredTables[i].score != scoredTables[j].score {
			return scoredTables[i].score > scoredTables[j].score
		}
		return scoredTables[i].table.QualifiedName() < scoredTables[j].table.QualifiedName()
	})

	out := make([]TableInfo, len(scoredTables))
	for i, st := range scoredTables {
		out[i] = st.table
	}
	return out
}

func overlapScore(t TableInfo, qTokens map[string]bool) int {
	score := 0
	for _, tok := range tokenizeWords(t.Name) {
		if qTokens[tok] {
			score++
		}
	}
	for _, c := range t.Columns {
		for _, tok := range tokenizeWords(c.Name) {
			if qTokens[tok] {
				score++
			}
		}
	}
	return score
}

func tokenizeWords(s string) []string {
	lower := strings.ToLower(s)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func tokenSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
