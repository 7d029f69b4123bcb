package chatapi

import (
	"context"
	"net/http"
	"time"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// ListModels answers GET /v1/models with one entry per tenant (spec §4.2).
// Each id is the bare tenant id, which Resolve's model-prefix step also
// accepts on the way back in; the tenant's configured model is not part
// of the id.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.TenantIDs()
	entries := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, modelEntry{ID: id, Object: "model", OwnedBy: "agent-gateway"})
	}
	writeJSON(w, http.StatusOK, modelsResponse{Object: "list", Data: entries})
}

// ListTenants answers the admin-only GET /tenants (spec §6.2), with no
// credentials or connection settings in the response body.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Summaries())
}

type tenantHealth struct {
	TenantID  string `json:"tenant_id"`
	Reachable bool   `json:"reachable"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Tenants []tenantHealth `json:"tenants"`
}

// Health answers GET /health. It reports process liveness unconditionally
// and, as a supplemented feature (spec §9, grounded on
// shared_components/database_connection.py's connection smoke test),
// attempts a bounded PING against every tenant with a live or lazily
// constructible connection pool so an operator can see which tenants'
// databases are actually reachable without calling each one's own agent.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ids := h.registry.TenantIDs()
	tenants := make([]tenantHealth, 0, len(ids))
	for _, id := range ids {
		tenants = append(tenants, tenantHealth{TenantID: id, Reachable: h.pingTenant(ctx, id)})
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Tenants: tenants})
}

func (h *Handler) pingTenant(ctx context.Context, tenantID string) bool {
	rt, ok := h.registry.Lookup(tenantID)
	if !ok || !rt.Config.Settings.EnablePostgresAgent {
		return true
	}
	pool, err := h.registry.PoolFor(ctx, rt)
	if err != nil {
		return false
	}
	return pool.Ping(ctx) == nil
}
