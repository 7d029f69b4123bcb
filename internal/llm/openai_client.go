package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/metrics"
	"github.com/siamtech/agent-gateway/internal/models"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// OpenAIClient talks to any OpenAI-compatible /v1/chat/completions backend
// (spec §4.5 permits any such backend, not just OpenAI itself; the tenant
// registry document points this at a self-hosted Ollama/vLLM endpoint in
// the reference deployment).
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
}

func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		maxRetries: 3,
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	Delta        wireMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type wireResponse struct {
	Choices []wireChoice  `json:"choices"`
	Usage   models.Usage  `json:"usage"`
}

func (c *OpenAIClient) buildRequest(req CompletionRequest, stream bool) wireRequest {
	temp := req.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages := make([]wireMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	return wireRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

// Complete issues a single non-streaming completion, retrying transient
// failures (connection errors, 5xx, 429) with exponential backoff.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	body, err := json.Marshal(c.buildRequest(req, false))
	if err != nil {
		return CompletionResult{}, apperr.Internal(fmt.Errorf("marshal completion request: %w", err))
	}

	var result CompletionResult
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	policy = backoff.WithContext(policy, ctx)

	operation := func() error {
		resp, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(apperr.ProviderUnavailable(err))
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(raw))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(apperr.ProviderUnavailable(fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(raw))))
		}

		var wr wireResponse
		if err := json.Unmarshal(raw, &wr); err != nil {
			return backoff.Permanent(apperr.ProviderUnavailable(fmt.Errorf("decode provider response: %w", err)))
		}
		if len(wr.Choices) == 0 {
			return backoff.Permanent(apperr.ProviderUnavailable(fmt.Errorf("provider returned no choices")))
		}

		result = CompletionResult{Content: wr.Choices[0].Message.Content, Usage: wr.Usage}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(req.TenantID).Inc()
		if ae, ok := apperr.As(err); ok {
			return CompletionResult{}, ae
		}
		return CompletionResult{}, apperr.ProviderUnavailable(err)
	}

	metrics.TokensTotal.WithLabelValues(req.TenantID, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues(req.TenantID, "completion").Add(float64(result.Usage.CompletionTokens))
	return result, nil
}

func (c *OpenAIClient) doRequest(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(apperr.Internal(err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	return resp, nil
}

// Stream issues a streaming completion and returns a channel of deltas.
// Retries only apply to the initial connect; once the SSE stream starts,
// a mid-stream failure surfaces only as the channel closing without a Done
// chunk (nothing is logged), matching the teacher's "don't retry a response already in flight" stance
// in proxy.go's status-based retry gate.
func (c *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	body, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("marshal completion request: %w", err))
	}

	var resp *http.Response
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	policy = backoff.WithContext(policy, ctx)

	connect := func() error {
		r, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			raw, _ := io.ReadAll(r.Body)
			r.Body.Close()
			return fmt.Errorf("provider returned %d: %s", r.StatusCode, string(raw))
		}
		if r.StatusCode >= 400 {
			raw, _ := io.ReadAll(r.Body)
			r.Body.Close()
			return backoff.Permanent(apperr.ProviderUnavailable(fmt.Errorf("provider returned %d: %s", r.StatusCode, string(raw))))
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(connect, policy); err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(req.TenantID).Inc()
		if ae, ok := apperr.As(err); ok {
			return nil, ae
		}
		return nil, apperr.ProviderUnavailable(err)
	}

	out := make(chan StreamChunk)
	go c.pumpSSE(ctx, resp, req.TenantID, out)
	return out, nil
}

func (c *OpenAIClient) pumpSSE(ctx context.Context, resp *http.Response, tenantID string, out chan<- StreamChunk) {
	defer close(out)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var promptTokens, completionTokens int

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			out <- StreamChunk{Done: true, Usage: models.Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens, TotalTokens: promptTokens + completionTokens}}
			return
		}

		var wr wireResponse
		if err := json.Unmarshal([]byte(payload), &wr); err != nil {
			continue
		}
		if wr.Usage.TotalTokens > 0 {
			promptTokens, completionTokens = wr.Usage.PromptTokens, wr.Usage.CompletionTokens
		}
		if len(wr.Choices) == 0 {
			continue
		}
		if content := wr.Choices[0].Delta.Content; content != "" {
			select {
			case out <- StreamChunk{Content: content}:
			case <-ctx.Done():
				return
			}
		}
	}

	metrics.TokensTotal.WithLabelValues(tenantID, "prompt").Add(float64(promptTokens))
	metrics.TokensTotal.WithLabelValues(tenantID, "completion").Add(float64(completionTokens))
}
