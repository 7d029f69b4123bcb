package knowledgebase

import (
	"context"
	"fmt"
	"strings"

	"github.com/siamtech/agent-gateway/internal/agentapi"
	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/llm"
	"github.com/siamtech/agent-gateway/internal/models"
	"github.com/siamtech/agent-gateway/internal/registry"
)

const citationPreamble = `Answer the question using only the passages below. Every sentence must cite the passage id(s) it draws from, like [p3]. If the passages don't answer the question, say so plainly.`

// Agent is the retrieval-augmented question-answerer the dispatcher
// selects for unstructured-document intents.
type Agent struct {
	registry *registry.Registry
	client   *Client
	provider llm.Provider
}

func NewAgent(reg *registry.Registry, client *Client, provider llm.Provider) *Agent {
	return &Agent{registry: reg, client: client, provider: provider}
}

func (a *Agent) Name() models.AgentType { return models.AgentKnowledgeBase }

// Answer retrieves top_k passages from the tenant's own KB prefix and
// asks the LLM Provider for a citation-bearing synthesis (spec §4.5).
// Empty retrieval is recoverable so the dispatcher can fall back.
func (a *Agent) Answer(ctx context.Context, req agentapi.Request) (agentapi.Result, error) {
	rt, ok := a.registry.Lookup(req.TenantID)
	if !ok {
		return agentapi.Result{}, apperr.TenantUnknown(req.TenantID)
	}
	if !rt.Config.Settings.EnableKnowledgeBase {
		return agentapi.Result{}, apperr.AgentDisabled("knowledge_base")
	}

	passages, err := a.client.Retrieve(ctx, rt.Config.KnowledgeBase, req.Question)
	if err != nil {
		return agentapi.Result{}, err
	}
	if len(passages) == 0 {
		return agentapi.Result{}, apperr.New(apperr.CodeKBUnavailable, 502, true, "knowledge base retrieval returned no passages", nil)
	}

	result, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model:        req.Model,
		SystemPrompt: citationPreamble + "\n\n" + formatPassages(passages),
		Messages:     []models.ChatMessage{{Role: "user", Content: req.Question}},
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		TenantID:     req.TenantID,
	})
	if err != nil {
		return agentapi.Result{}, err
	}

	return agentapi.Result{Answer: result.Content, Agent: models.AgentKnowledgeBase}, nil
}

func formatPassages(passages []Passage) string {
	var b strings.Builder
	for _, p := range passages {
		b.WriteString(fmt.Sprintf("[%s] (source: %s) %s\n", p.ID, p.Source, p.Text))
	}
	return b.String()
}
