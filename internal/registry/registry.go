// Package registry implements the Tenant Registry (spec §4.1): the single
// source of truth for tenant identity, credentials, and policy, and the
// owner of every per-tenant database pool. It is the only process-wide
// mutable state in the gateway (spec §9): readers borrow an immutable
// generation, writers publish a new one behind an atomic pointer.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/siamtech/agent-gateway/internal/models"
)

// Registry owns the current generation and every tenant's lazily
// constructed connection pool.
type Registry struct {
	path        string
	gracePeriod time.Duration

	gen atomic.Pointer[generation]

	mu            sync.Mutex
	poolsByTenant map[string]*tenantPoolEntry
}

// Policy returns the global policy of the currently published generation.
func (r *Registry) Policy() (p GlobalPolicyView) {
	g := r.gen.Load()
	return GlobalPolicyView{
		RequireTenantHeader: g.policy.RequireTenantHeader,
		DefaultOnMissing:    g.policy.DefaultOnMissing,
		TenantHeaderName:    g.policy.TenantHeaderName,
		FallbackAgent:       g.policy.FallbackAgent,
		RetryCount:          g.policy.RetryCount,
		TimeoutSeconds:      g.policy.TimeoutSeconds,
		LogQueries:          g.policy.LogQueries,
	}
}

// GlobalPolicyView is a read-only copy of models.GlobalPolicy handed to
// callers outside this package; it cannot be mutated to affect the
// registry's own state.
type GlobalPolicyView struct {
	RequireTenantHeader bool
	DefaultOnMissing    bool
	TenantHeaderName    string
	FallbackAgent       string
	RetryCount          int
	TimeoutSeconds      int
	LogQueries          bool
}

// TenantIDs lists every tenant id in the current generation, for
// /v1/models and /health.
func (r *Registry) TenantIDs() []string {
	g := r.gen.Load()
	ids := make([]string, 0, len(g.tenants))
	for id := range g.tenants {
		ids = append(ids, id)
	}
	return ids
}

// Lookup resolves a known tenant id directly, bypassing the §4.2 extraction
// order Resolve applies -- for admin surfaces that already know which
// tenant they mean.
func (r *Registry) Lookup(tenantID string) (*TenantRuntime, bool) {
	g := r.gen.Load()
	cfg, ok := g.lookup(tenantID)
	if !ok {
		return nil, false
	}
	return &TenantRuntime{Config: cfg, Policy: g.policy, generation: g.id}, true
}

// Summaries returns the secret-free view of every configured tenant, for
// GET /tenants (spec §6.2).
func (r *Registry) Summaries() []models.TenantSummary {
	g := r.gen.Load()
	out := make([]models.TenantSummary, 0, len(g.tenants))
	for id, cfg := range g.tenants {
		out = append(out, models.TenantSummary{
			TenantID:             id,
			Name:                 cfg.Name,
			Language:             cfg.Language,
			PostgresEnabled:      cfg.Settings.EnablePostgresAgent,
			KnowledgeBaseEnabled: cfg.Settings.EnableKnowledgeBase,
			FallbackEnabled:      cfg.Settings.EnableFallback,
		})
	}
	return out
}
