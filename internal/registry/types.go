package registry

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/siamtech/agent-gateway/internal/models"
)

// generation is one coherent, immutable snapshot of the tenant registry
// document (spec §3 "Generation"). Reload() publishes a new generation
// atomically; in-flight requests that already hold a *TenantRuntime keep
// using the generation they observed.
type generation struct {
	id              int64
	tenants         map[string]*models.TenantConfig
	policy          models.GlobalPolicy
	defaultTenantID string
	loadedAt        time.Time
}

func (g *generation) lookup(tenantID string) (*models.TenantConfig, bool) {
	cfg, ok := g.tenants[tenantID]
	return cfg, ok
}

// TenantRuntime wraps a TenantConfig with the generation it was resolved
// from (spec §3 "TenantRuntime"). The pool is fetched separately via
// Registry.PoolFor, which is keyed by tenant id and lazily constructs the
// connection pool on first SQL-agent use.
type TenantRuntime struct {
	Config     *models.TenantConfig
	Policy     models.GlobalPolicy
	generation int64
}

// tenantPoolEntry tracks which generation a live pool belongs to, so Reload
// can tell which pools are stale and need draining.
type tenantPoolEntry struct {
	generation int64
	pool       *pgxpool.Pool
}

// ResolutionHint carries every signal the façade extracted from one HTTP
// request, in the priority order spec §4.2 defines: header → key prefix →
// model prefix → body tenant_id → default.
type ResolutionHint struct {
	HeaderTenantID string
	AuthHeader     string // raw Authorization header, parsed for sk-<tenant>
	Model          string // raw model field, parsed for <tenant>-<model>
	BodyTenantID   string
}
