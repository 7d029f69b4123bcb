// Package chatapi exposes the gateway's OpenAI-compatible surface (spec
// §4.2): /v1/chat/completions (streaming and non-streaming), /v1/models,
// /health, and the admin-only /tenants listing. It is grounded on the
// teacher's internal/proxy.Handler request flow (tenant resolution, rate
// limiting, access logging) generalized from a single reverse-proxied
// backend to the dispatcher's three-agent selection.
package chatapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/siamtech/agent-gateway/internal/db"
	"github.com/siamtech/agent-gateway/internal/dispatcher"
	"github.com/siamtech/agent-gateway/internal/ratelimit"
	"github.com/siamtech/agent-gateway/internal/registry"
)

type Handler struct {
	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	limiter    *ratelimit.RateLimiter
	db         *db.DB
}

func NewHandler(reg *registry.Registry, dsp *dispatcher.Dispatcher, limiter *ratelimit.RateLimiter, database *db.DB) *Handler {
	return &Handler{registry: reg, dispatcher: dsp, limiter: limiter, db: database}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/chat/completions", h.ChatCompletions).Methods("POST")
	router.HandleFunc("/v1/models", h.ListModels).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")
}

// RegisterAdminRoutes wires the admin-only tenant listing separately so
// cmd/server can put auth.Middleware.Authenticate only in front of this
// one route instead of the whole chatapi surface.
func (h *Handler) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.ListTenants).Methods("GET")
}

func newRequestID() string {
	return "chatcmpl-" + uuid.NewString()
}

func nowUnix() int64 {
	return time.Now().Unix()
}

func clampLanguage(cfgLanguage string) string {
	if cfgLanguage == "" {
		return "en"
	}
	return cfgLanguage
}
