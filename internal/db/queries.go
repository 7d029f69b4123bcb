package db

import (
	"context"

	"github.com/siamtech/agent-gateway/internal/models"
)

func (db *DB) LogAccess(ctx context.Context, log *models.AccessLog) error {
	query := `
        INSERT INTO access_logs (tenant_id, endpoint, method, status_code, response_time_ms, request_size, response_size, agent_used, sql_executed)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	_, err := db.Pool.Exec(ctx, query,
		log.TenantID,
		log.Endpoint,
		log.Method,
		log.StatusCode,
		log.ResponseTimeMs,
		log.RequestSize,
		log.ResponseSize,
		log.AgentUsed,
		log.SQLExecuted,
	)

	return err
}

// AccessLogsForTenant returns the most recent access log rows for a tenant,
// newest first, for the admin analytics surface.
func (db *DB) AccessLogsForTenant(ctx context.Context, tenantID string, limit int) ([]models.AccessLog, error) {
	query := `
        SELECT id, tenant_id, endpoint, method, status_code, response_time_ms, request_size, response_size, agent_used, sql_executed, timestamp
        FROM access_logs
        WHERE tenant_id = $1
        ORDER BY timestamp DESC
        LIMIT $2
    `

	rows, err := db.Pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AccessLog
	for rows.Next() {
		var l models.AccessLog
		if err := rows.Scan(
			&l.ID, &l.TenantID, &l.Endpoint, &l.Method, &l.StatusCode,
			&l.ResponseTimeMs, &l.RequestSize, &l.ResponseSize, &l.AgentUsed, &l.SQLExecuted, &l.Timestamp,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// AgentUsageCounts returns how many requests each agent handled for a
// tenant, for GET /admin/tenants/{id}/stats.
func (db *DB) AgentUsageCounts(ctx context.Context, tenantID string) (map[string]int, error) {
	query := `
        SELECT agent_used, COUNT(*)
        FROM access_logs
        WHERE tenant_id = $1 AND agent_used <> ''
        GROUP BY agent_used
    `

	rows, err := db.Pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var agent string
		var count int
		if err := rows.Scan(&agent, &count); err != nil {
			return nil, err
		}
		counts[agent] = count
	}
	return counts, rows.Err()
}

func (db *DB) CreateAPIKey(ctx context.Context, key *models.TenantAPIKey) error {
	query := `
        INSERT INTO tenant_api_keys (tenant_id, api_key, created_at, revoked)
        VALUES ($1, $2, NOW(), false)
        RETURNING id, created_at
    `
	return db.Pool.QueryRow(ctx, query, key.TenantID, key.APIKey).Scan(&key.ID, &key.CreatedAt)
}

func (db *DB) RevokeAPIKey(ctx context.Context, apiKey string) error {
	query := `UPDATE tenant_api_keys SET revoked = true WHERE api_key = $1`
	_, err := db.Pool.Exec(ctx, query, apiKey)
	return err
}

func (db *DB) TenantIDForAPIKey(ctx context.Context, apiKey string) (string, error) {
	query := `SELECT tenant_id FROM tenant_api_keys WHERE api_key = $1 AND revoked = false`
	var tenantID string
	err := db.Pool.QueryRow(ctx, query, apiKey).Scan(&tenantID)
	return tenantID, err
}
