// Package admin exposes the control-plane surface reserved by spec §9's
// supplemented features: tenant summaries, per-tenant analytics and
// row-count stats, API-key rotation, and route-cache stats. It is grounded
// on the teacher's internal/admin/admin.go (mux routes, generateAPIKey),
// generalized from DB-backed tenant CRUD to the YAML-registry world: the
// registry document is the source of truth for tenant shape, so this
// package only manages what varies at runtime (issued keys, reload,
// observability) instead of tenant definitions themselves.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/siamtech/agent-gateway/internal/agent/postgres"
	"github.com/siamtech/agent-gateway/internal/cache"
	"github.com/siamtech/agent-gateway/internal/db"
	"github.com/siamtech/agent-gateway/internal/models"
	"github.com/siamtech/agent-gateway/internal/registry"
)

type Handler struct {
	registry    *registry.Registry
	db          *db.DB
	schemaCache *postgres.SchemaCache
	routeCache  *cache.RouteCache
}

func NewHandler(reg *registry.Registry, database *db.DB, schemaCache *postgres.SchemaCache, routeCache *cache.RouteCache) *Handler {
	return &Handler{registry: reg, db: database, schemaCache: schemaCache, routeCache: routeCache}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/reload", h.Reload).Methods("POST")
	router.HandleFunc("/admin/tenants/{id}/rotate-key", h.RotateAPIKey).Methods("POST")
	router.HandleFunc("/admin/tenants/{id}/analytics", h.GetAnalytics).Methods("GET")
	router.HandleFunc("/admin/tenants/{id}/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/admin/cache/stats", h.GetCacheStats).Methods("GET")
}

// Reload re-reads the tenant registry document and publishes a new
// generation (spec §4.1 Reload()).
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(); err != nil {
		log.Printf("admin: reload failed: %v", err)
		http.Error(w, "Failed to reload tenant config", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// RotateAPIKey issues a fresh random key bound to tenantID in the
// control-plane store, revoking any key issued before it. The key is only
// recorded there: chat-request tenant resolution recognizes the
// "sk-<tenant-id>" convention (spec §4.2) and does not look keys up in
// the store.
func (h *Handler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]
	if _, ok := h.registry.Lookup(tenantID); !ok {
		http.Error(w, "Unknown tenant", http.StatusNotFound)
		return
	}

	newKey, err := generateAPIKey(tenantID)
	if err != nil {
		http.Error(w, "Failed to generate API key", http.StatusInternalServerError)
		return
	}

	if err := h.db.CreateAPIKey(r.Context(), &models.TenantAPIKey{TenantID: tenantID, APIKey: newKey}); err != nil {
		log.Printf("admin: rotate key for %s failed: %v", tenantID, err)
		http.Error(w, "Failed to rotate API key", http.StatusInternalServerError)
		return
	}

	revokeOlder := `UPDATE tenant_api_keys SET revoked = true WHERE tenant_id = $1 AND api_key <> $2 AND revoked = false`
	if _, err := h.db.Pool.Exec(r.Context(), revokeOlder, tenantID, newKey); err != nil {
		log.Printf("admin: revoke older keys for %s failed: %v", tenantID, err)
		http.Error(w, "Failed to rotate API key", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"api_key": newKey, "status": "rotated"})
}

// GetAnalytics returns recent access-log rows for a tenant (spec §9
// "per-tenant analytics"), reusing the teacher's access_logs table shape.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]
	logs, err := h.db.AccessLogsForTenant(r.Context(), tenantID, 100)
	if err != nil {
		http.Error(w, "Failed to get analytics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetStats exposes per-table row-count estimates from the tenant's schema
// snapshot plus per-agent usage counts (spec §9 "basic per-table row-count
// stats", grounded on postgres_agent.py's get_stats).
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["id"]
	rt, ok := h.registry.Lookup(tenantID)
	if !ok {
		http.Error(w, "Unknown tenant", http.StatusNotFound)
		return
	}

	usage, err := h.db.AgentUsageCounts(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "Failed to get agent usage", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{"tenant_id": tenantID, "agent_usage": usage}

	if rt.Config.Settings.EnablePostgresAgent {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		pool, err := h.registry.PoolFor(ctx, rt)
		if err == nil {
			if snapshot, err := h.schemaCache.Get(ctx, tenantID, pool); err == nil {
				tables := make([]map[string]interface{}, 0, len(snapshot.Tables))
				for _, t := range snapshot.Tables {
					tables = append(tables, map[string]interface{}{
						"table":          t.QualifiedName(),
						"estimated_rows": t.EstimatedRows,
					})
				}
				resp["tables"] = tables
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCacheStats returns the dispatcher route-classification cache's
// hit/miss counters (spec §9 "cache-stats admin endpoint").
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.routeCache.Stats())
}

func generateAPIKey(tenantID string) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "sk-" + tenantID + "-" + hex.EncodeToString(raw), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
