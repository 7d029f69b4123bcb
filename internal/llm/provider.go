// Package llm wraps an OpenAI-compatible chat completions endpoint with the
// retry and cancellation behavior every agent needs (spec §4.5 LLM
// Provider). It replaces the teacher's httputil reverse-proxy loop
// (internal/proxy/proxy.go) with a direct client plus cenkalti/backoff/v4,
// since every agent here calls the model in-process rather than forwarding
// an inbound HTTP request.
package llm

import (
	"context"

	"github.com/siamtech/agent-gateway/internal/models"
)

// CompletionRequest is one call into the provider. SystemPrompt and
// Messages are assembled by the calling agent; a zero Temperature or
// MaxTokens is replaced by the client's package defaults (0.2 and 1024).
type CompletionRequest struct {
	Model       string
	SystemPrompt string
	Messages    []models.ChatMessage
	Temperature float64
	MaxTokens   int
	TenantID    string // used only for metrics labels
}

// CompletionResult is a finished, non-streaming completion.
type CompletionResult struct {
	Content string
	Usage   models.Usage
}

// StreamChunk is one token delta of a streaming completion.
type StreamChunk struct {
	Content string
	Done    bool
	Usage   models.Usage // populated only on the final chunk, if the backend reports it
}

// Provider is the interface every agent and the fallback path call through.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}
