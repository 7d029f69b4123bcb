package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siamtech/agent-gateway/internal/apperr"
)

const defaultMaxRows = 500

var limitRe = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)

// QueryResult is the rendered-ready shape of an executed query.
type QueryResult struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// execute runs gq on a connection from pool inside a read-only
// transaction with the session guards spec §4.4 step 4 mandates, and
// injects a LIMIT if the generated SQL has none (or one above maxRows).
//
// To tell "exactly maxRows rows exist" apart from "more rows were cut off"
// (spec §8's row-cap boundary test), an injected LIMIT always asks for one
// extra row; the extra row is trimmed off before it reaches the caller and
// only flips Truncated when it was actually returned.
func execute(ctx context.Context, pool *pgxpool.Pool, gq *GeneratedQuery, maxRows int) (*QueryResult, error) {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	sql, injected := boundedSQL(gq.SQL, maxRows)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, apperr.DBUnavailable(fmt.Errorf("begin read-only tx: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SET LOCAL statement_timeout = '30s'"); err != nil {
		return nil, apperr.DBUnavailable(fmt.Errorf("set statement_timeout: %w", err))
	}
	if _, err := tx.Exec(ctx, "SET LOCAL idle_in_transaction_session_timeout = '60s'"); err != nil {
		return nil, apperr.DBUnavailable(fmt.Errorf("set idle_in_transaction_session_timeout: %w", err))
	}
	if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '2s'"); err != nil {
		return nil, apperr.DBUnavailable(fmt.Errorf("set lock_timeout: %w", err))
	}

	rows, err := tx.Query(ctx, sql, gq.Params...)
	if err != nil {
		if isStatementTimeout(err) {
			return nil, apperr.Timeout("query exceeded statement_timeout")
		}
		return nil, apperr.DBUnavailable(fmt.Errorf("execute query: %w", err))
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var result [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperr.DBUnavailable(fmt.Errorf("read row: %w", err))
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		if isStatementTimeout(err) {
			return nil, apperr.Timeout("query exceeded statement_timeout")
		}
		return nil, apperr.DBUnavailable(fmt.Errorf("iterate rows: %w", err))
	}

	truncated := false
	if injected && len(result) > maxRows {
		result = result[:maxRows]
		truncated = true
	}

	return &QueryResult{Columns: columns, Rows: result, Truncated: truncated}, nil
}

// boundedSQL appends "LIMIT maxRows+1" when gq's SQL has no LIMIT clause,
// or replaces an existing LIMIT that exceeds maxRows, so execute can
// detect truncation by whether the extra row came back. It reports
// whether it injected a limit at all.
func boundedSQL(sql string, maxRows int) (string, bool) {
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")

	if m := limitRe.FindStringSubmatch(trimmed); m != nil {
		existing, err := strconv.Atoi(m[1])
		if err == nil && existing <= maxRows {
			return trimmed, false
		}
		return limitRe.ReplaceAllString(trimmed, fmt.Sprintf("LIMIT %d", maxRows+1)), true
	}

	return fmt.Sprintf("%s LIMIT %d", trimmed, maxRows+1), true
}

func isStatementTimeout(err error) bool {
	return strings.Contains(err.Error(), "statement timeout") || strings.Contains(err.Error(), "57014")
}
