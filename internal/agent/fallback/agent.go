// Package fallback implements the generative fallback agent (spec §4.6):
// a best-effort free-form answer with a disclaimer that the data source is
// generic, grounded on aggregator_agent.py's _ollama_query fallback path
// generalized to the provider-neutral llm.Provider.
package fallback

import (
	"context"

	"github.com/siamtech/agent-gateway/internal/agentapi"
	"github.com/siamtech/agent-gateway/internal/llm"
	"github.com/siamtech/agent-gateway/internal/models"
)

const systemPromptEN = `You are a general-purpose assistant. Answer helpfully and concisely. You have no access to the tenant's database or knowledge base, so never claim to have looked anything up; if the question needs real data, say so.`

const systemPromptTH = `คุณเป็นผู้ช่วยทั่วไป ตอบอย่างกระชับและเป็นประโยชน์ คุณไม่มีสิทธิ์เข้าถึงฐานข้อมูลหรือคลังความรู้ของลูกค้า ดังนั้นห้ามอ้างว่าได้ตรวจสอบข้อมูลจริง หากคำถามต้องใช้ข้อมูลจริงให้บอกผู้ใช้ตามนั้น`

const disclaimerEN = "\n\n_Note: this answer is generic and was not produced from your organization's data._"
const disclaimerTH = "\n\n_หมายเหตุ: คำตอบนี้เป็นคำตอบทั่วไป ไม่ได้มาจากข้อมูลขององค์กรของคุณ_"

// Agent is the last-resort question-answerer. It has no external IO
// beyond the LLM call and always succeeds unless the LLM itself fails
// (spec §4.6).
type Agent struct {
	provider llm.Provider
}

func NewAgent(provider llm.Provider) *Agent {
	return &Agent{provider: provider}
}

func (a *Agent) Name() models.AgentType { return models.AgentFallback }

func (a *Agent) Answer(ctx context.Context, req agentapi.Request) (agentapi.Result, error) {
	system := systemPromptEN
	disclaimer := disclaimerEN
	if req.ResponseLanguage == "th" {
		system = systemPromptTH
		disclaimer = disclaimerTH
	}

	result, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model:        req.Model,
		SystemPrompt: system,
		Messages:     []models.ChatMessage{{Role: "user", Content: req.Question}},
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		TenantID:     req.TenantID,
	})
	if err != nil {
		return agentapi.Result{}, err
	}

	return agentapi.Result{Answer: result.Content + disclaimer, Agent: models.AgentFallback}, nil
}
