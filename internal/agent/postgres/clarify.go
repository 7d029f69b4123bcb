package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// yearPattern pulls a four-digit year (1900-2099) out of a question, the
// only "observed range" signal spec §4.4 step 6 asks for.
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// misunderstandingHint reports the high-confidence signal spec §4.4 step 6
// requires before a zero-row result may become a clarifying question: the
// question names a year that falls outside the min/max range actually
// observed in a date/timestamp column of one of the tables the generated
// query touched. Any failure to find a year, a date column, or to run the
// range query is treated as "no hint" rather than an error, since a
// legitimately-empty result must default to a normal answer.
func misunderstandingHint(ctx context.Context, pool *pgxpool.Pool, question string, snapshot *SchemaSnapshot, tablesUsed []string) bool {
	match := yearPattern.FindString(question)
	if match == "" {
		return false
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return false
	}

	for _, qualified := range tablesUsed {
		table, ok := findTable(snapshot, qualified)
		if !ok {
			continue
		}
		column, ok := dateColumn(table)
		if !ok {
			continue
		}
		minYear, maxYear, err := observedYearRange(ctx, pool, table, column)
		if err != nil {
			continue
		}
		if year < minYear || year > maxYear {
			return true
		}
	}
	return false
}

func findTable(snapshot *SchemaSnapshot, qualifiedName string) (TableInfo, bool) {
	for _, t := range snapshot.Tables {
		if t.QualifiedName() == qualifiedName {
			return t, true
		}
	}
	return TableInfo{}, false
}

// dateColumn returns the first date- or timestamp-typed column of t, the
// column the observed-range check reads against.
func dateColumn(t TableInfo) (string, bool) {
	for _, c := range t.Columns {
		lower := strings.ToLower(c.DataType)
		if strings.Contains(lower, "date") || strings.Contains(lower, "timestamp") {
			return c.Name, true
		}
	}
	return "", false
}

// observedYearRange queries the live min/max year of column across all of
// table, identifiers sanitized with pgx.Identifier since they come from
// introspection rather than the question or the generated SQL.
func observedYearRange(ctx context.Context, pool *pgxpool.Pool, t TableInfo, column string) (int, int, error) {
	col := pgx.Identifier{column}.Sanitize()
	query := fmt.Sprintf(
		"SELECT EXTRACT(YEAR FROM MIN(%s))::int, EXTRACT(YEAR FROM MAX(%s))::int FROM %s",
		col, col, pgx.Identifier{t.Schema, t.Name}.Sanitize(),
	)

	var minYear, maxYear *int
	if err := pool.QueryRow(ctx, query).Scan(&minYear, &maxYear); err != nil {
		return 0, 0, err
	}
	if minYear == nil || maxYear == nil {
		return 0, 0, fmt.Errorf("%s.%s has no rows to observe a year range from", t.Schema, t.Name)
	}
	return *minYear, *maxYear, nil
}
