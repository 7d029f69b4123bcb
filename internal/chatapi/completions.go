package chatapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/siamtech/agent-gateway/internal/agentapi"
	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/metrics"
	"github.com/siamtech/agent-gateway/internal/models"
)

// ChatCompletions implements POST /v1/chat/completions (spec §4.2): resolve
// the tenant, check its request budget, dispatch the question to whichever
// agent the dispatcher selects, and render either a single JSON body or an
// SSE stream of the same content.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIError(w, apperr.BadRequest("malformed request body"))
		return
	}
	if len(body.Messages) == 0 {
		writeAPIError(w, apperr.BadRequest("messages must not be empty"))
		return
	}

	policy := h.registry.Policy()
	headerTenantID := r.Header.Get(policy.TenantHeaderName)
	hint := hintFromRequest(headerTenantID, r.Header.Get("Authorization"), body)

	rt, err := h.registry.Resolve(hint)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	tenantID := rt.Config.TenantID

	allowed, err := h.limiter.Allow(r.Context(), tenantID, rt.Config.Settings.RequestsPerHour)
	if err != nil {
		log.Printf("chatapi: rate limit check failed for %s: %v", tenantID, err)
	} else if !allowed {
		h.logAccess(r, tenantID, "", false, http.StatusTooManyRequests, start)
		writeAPIError(w, apperr.RateLimited(tenantID))
		return
	}

	req := agentapi.Request{
		TenantID:         tenantID,
		Question:         body.LastUserMessage(),
		ResponseLanguage: clampLanguage(rt.Config.Settings.ResponseLanguage),
		Model:            firstNonEmpty(body.Model, rt.Config.Model),
		Temperature:      floatOr(body.Temperature, rt.Config.Settings.Temperature),
		MaxTokens:        intOr(body.MaxTokens, rt.Config.Settings.MaxTokens),
		KnowledgeBase:    rt.Config.KnowledgeBase,
	}

	result, dispatchErr := h.dispatcher.Dispatch(r.Context(), req, body.AgentType)
	status := http.StatusOK
	agentUsed := ""
	sqlExecuted := false
	if dispatchErr != nil {
		status = apperr.HTTPStatusFor(dispatchErr)
	} else {
		agentUsed = string(result.Agent)
		sqlExecuted = result.SQLExecuted
	}

	metrics.RequestDurationSeconds.WithLabelValues(tenantID, agentUsed).Observe(time.Since(start).Seconds())
	outcome := "success"
	if dispatchErr != nil {
		outcome = "error"
	}
	metrics.RequestsTotal.WithLabelValues(tenantID, outcome).Inc()

	if dispatchErr != nil {
		h.logAccess(r, tenantID, agentUsed, sqlExecuted, status, start)
		writeAPIError(w, dispatchErr)
		return
	}

	h.logAccess(r, tenantID, agentUsed, sqlExecuted, status, start)

	if body.Stream {
		h.writeStreamingResponse(r.Context(), w, req.Model, result)
		return
	}
	h.writeCompletionResponse(w, req.Model, result)
}

func (h *Handler) writeCompletionResponse(w http.ResponseWriter, model string, result agentapi.Result) {
	resp := models.ChatCompletionResponse{
		ID:      newRequestID(),
		Object:  "chat.completion",
		Created: nowUnix(),
		Model:   model,
		Choices: []models.Choice{{
			Index:        0,
			Message:      models.ChatMessage{Role: "assistant", Content: result.Answer},
			FinishReason: "stop",
		}},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeStreamingResponse(ctx context.Context, w http.ResponseWriter, model string, result agentapi.Result) {
	sw, err := newStreamWriter(w)
	if err != nil {
		writeAPIError(w, apperr.Internal(err))
		return
	}
	streamAnswer(ctx, sw, newRequestID(), model, result.Answer)
}

func (h *Handler) logAccess(r *http.Request, tenantID, agentUsed string, sqlExecuted bool, status int, start time.Time) {
	if h.db == nil {
		return
	}
	entry := &models.AccessLog{
		TenantID:       tenantID,
		Endpoint:       r.URL.Path,
		Method:         r.Method,
		StatusCode:     status,
		ResponseTimeMs: int(time.Since(start).Milliseconds()),
		RequestSize:    r.ContentLength,
		AgentUsed:      agentUsed,
		SQLExecuted:    sqlExecuted,
	}
	if err := h.db.LogAccess(r.Context(), entry); err != nil {
		log.Printf("chatapi: access log write failed: %v", err)
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func floatOr(ptr *float64, fallback float64) float64 {
	if ptr != nil {
		return *ptr
	}
	return fallback
}

func intOr(ptr *int, fallback int) int {
	if ptr != nil {
		return *ptr
	}
	return fallback
}
