package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siamtech/agent-gateway/internal/agentapi"
	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/cache"
	"github.com/siamtech/agent-gateway/internal/dispatcher"
	"github.com/siamtech/agent-gateway/internal/models"
	"github.com/siamtech/agent-gateway/internal/ratelimit"
	"github.com/siamtech/agent-gateway/internal/registry"
)

const testTenantYAML = `
default_tenant: acme
tenants:
  acme:
    name: Acme Corp
    language: en
    model: gpt-4o-mini
    database:
      host: localhost
      port: 5432
      database: acme
      user: acme
      password: secret
    settings:
      enable_postgres_agent: false
      enable_knowledge_base_agent: false
      enable_fallback_agent: true
      requests_per_hour: 0
global_settings:
  retry_count: 3
`

// stubAgent fails the test if the dispatcher ever invokes it; the test
// fixture disables the postgres and knowledge_base agents, so only
// fallback should ever be reached for a question with a clear
// "explain the policy" document-intent cue.
type stubAgent struct {
	agentType models.AgentType
	t         *testing.T
}

func (a *stubAgent) Name() models.AgentType { return a.agentType }

func (a *stubAgent) Answer(ctx context.Context, req agentapi.Request) (agentapi.Result, error) {
	a.t.Fatalf("%s agent should not have been reached", a.agentType)
	return agentapi.Result{}, nil
}

type fallbackStub struct {
	answer string
}

func (a *fallbackStub) Name() models.AgentType { return models.AgentFallback }

func (a *fallbackStub) Answer(ctx context.Context, req agentapi.Request) (agentapi.Result, error) {
	return agentapi.Result{Answer: a.answer, Agent: models.AgentFallback}, nil
}

func newTestHandler(t *testing.T, answer string) *Handler {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	if err := os.WriteFile(path, []byte(testTenantYAML), 0o600); err != nil {
		t.Fatalf("write tenant fixture: %v", err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	t.Cleanup(reg.Close)

	rc, err := cache.NewRouteCache("redis://127.0.0.1:6399/0", 0)
	if err != nil {
		t.Fatalf("cache.NewRouteCache: %v", err)
	}

	postgresAgent := &stubAgent{agentType: models.AgentPostgres, t: t}
	kbAgent := &stubAgent{agentType: models.AgentKnowledgeBase, t: t}
	fallbackAgent := &fallbackStub{answer: answer}
	dsp := dispatcher.New(reg, rc, nil, postgresAgent, kbAgent, fallbackAgent)

	limiter, err := ratelimit.NewRateLimiter("redis://127.0.0.1:6399/0")
	if err != nil {
		t.Fatalf("ratelimit.NewRateLimiter: %v", err)
	}
	t.Cleanup(func() { limiter.Close() })

	return NewHandler(reg, dsp, limiter, nil)
}

// explainPolicyBody is deterministically classified as a knowledge_base
// question by the keyword classifier ("explain", "policy"), which the test
// fixture disables, forcing the dispatcher's fallback chain down to the
// fallback agent without ever touching the route cache or an LLM
// tie-breaker.
func explainPolicyBody(extra map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"model":    "gpt-4o-mini",
		"messages": []map[string]string{{"role": "user", "content": "can you explain the leave policy?"}},
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func postChatCompletions(t *testing.T, h *Handler, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer sk-acme")
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)
	return rec
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	h := newTestHandler(t, "the answer")

	rec := postChatCompletions(t, h, explainPolicyBody(nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	var resp models.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "the answer" {
		t.Errorf("response = %+v, want a single choice with content %q", resp, "the answer")
	}
}

// TestChatCompletionsStreamingCarriesTheSameAnswer exercises the SSE path
// with the same fixed-answer agent as the non-streaming test, verifying
// the invariant that both delivery modes carry the identical text even
// though the stream reassembles it from fixed-size rune-window chunks.
func TestChatCompletionsStreamingCarriesTheSameAnswer(t *testing.T) {
	h := newTestHandler(t, "one two three four five six")

	rec := postChatCompletions(t, h, explainPolicyBody(map[string]interface{}{"stream": true}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var assembled strings.Builder
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") || strings.TrimPrefix(line, "data: ") == "[DONE]" {
			continue
		}
		var chunk models.ChatCompletionChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			t.Fatalf("decode chunk %q: %v", line, err)
		}
		if len(chunk.Choices) == 1 {
			assembled.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if got := strings.TrimSpace(assembled.String()); got != "one two three four five six" {
		t.Errorf("streamed answer = %q, want %q", got, "one two three four five six")
	}
	if !strings.Contains(rec.Body.String(), "data: [DONE]") {
		t.Error("stream body missing the [DONE] sentinel")
	}
}

// TestChatCompletionsStreamingPreservesNewlines guards against the
// word-grouping bug where a multi-line answer (the postgres agent's
// rendered Markdown tables and head summaries are full of newlines) lost
// its line structure when chunked by strings.Fields and rejoined with
// single spaces -- the exact shape spec §8 scenario 5's streaming
// equivalence requires concatenated deltas to preserve.
func TestChatCompletionsStreamingPreservesNewlines(t *testing.T) {
	answer := "| id | name |\n| --- | --- |\n| 1 | Alice |\n| 2 | Bob |\n\n_source: tables public.employees (2 rows)_"
	h := newTestHandler(t, answer)

	rec := postChatCompletions(t, h, explainPolicyBody(map[string]interface{}{"stream": true}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}

	var assembled strings.Builder
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") || strings.TrimPrefix(line, "data: ") == "[DONE]" {
			continue
		}
		var chunk models.ChatCompletionChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			t.Fatalf("decode chunk %q: %v", line, err)
		}
		if len(chunk.Choices) == 1 {
			assembled.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if got := assembled.String(); got != answer {
		t.Errorf("streamed answer = %q, want %q (byte-for-byte, newlines included)", got, answer)
	}
}

func TestChatCompletionsRejectsEmptyMessages(t *testing.T) {
	h := newTestHandler(t, "unused")

	rec := postChatCompletions(t, h, map[string]interface{}{
		"model":    "gpt-4o-mini",
		"messages": []map[string]string{},
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatCompletionsUnknownTenantKeyIsRejected(t *testing.T) {
	h := newTestHandler(t, "unused")

	raw, _ := json.Marshal(explainPolicyBody(nil))
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer sk-does-not-exist")
	rec := httptest.NewRecorder()
	h.ChatCompletions(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401, body = %s", rec.Code, rec.Body.String())
	}

	var wire wireError
	if err := json.Unmarshal(rec.Body.Bytes(), &wire); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if wire.Error.Code != string(apperr.CodeTenantUnknown) {
		t.Errorf("error code = %q, want %q", wire.Error.Code, apperr.CodeTenantUnknown)
	}
}
