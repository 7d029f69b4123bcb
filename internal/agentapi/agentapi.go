// Package agentapi defines the contract the dispatcher drives every agent
// through (spec §4.3/§9 "Outcome"). Success and failure are plain Go
// return values rather than a tagged Success/Recoverable/Fatal union:
// error == nil is success, and a non-nil error is inspected with
// apperr.IsRecoverable to decide whether the dispatcher falls back or
// surfaces it -- the same typed-error taxonomy already used everywhere
// else in the gateway, generalized instead of introduced a second time.
package agentapi

import (
	"context"

	"github.com/siamtech/agent-gateway/internal/models"
)

// Request is what the dispatcher hands to whichever agent it selects. It
// carries only what an agent needs to answer one question for one tenant,
// not the whole TenantConfig or HTTP request.
type Request struct {
	TenantID         string
	Question         string
	ResponseLanguage string
	Model            string
	Temperature      float64
	MaxTokens        int

	// KnowledgeBase is read only by the knowledge-base agent; the
	// dispatcher constructs a Request once and agents read only the
	// fields relevant to them.
	KnowledgeBase models.KnowledgeBaseSettings
}

// Result is one agent's successful answer plus the bookkeeping the
// dispatcher needs for access logging and the façade's rendering.
type Result struct {
	Answer      string
	Agent       models.AgentType
	SQLExecuted bool
	TablesUsed  []string
	RowCount    int
}

// Agent is implemented by each of the three question-answerers the
// dispatcher can select (spec §4.4, §4.5, §4.6).
type Agent interface {
	Name() models.AgentType
	Answer(ctx context.Context, req Request) (Result, error)
}
