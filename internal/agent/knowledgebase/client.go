// Package knowledgebase implements the retrieval-augmented agent (spec
// §4.5): it calls the managed Knowledge-Base retrieval service for a
// tenant's prefixed index and synthesizes a citation-bearing answer
// through the shared LLM Provider. No KB-specific SDK appears anywhere in
// the example corpus, so the client is a plain net/http JSON client (see
// DESIGN.md).
package knowledgebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/models"
)

// Passage is one retrieved snippet (spec §6.4).
type Passage struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

type retrieveRequest struct {
	KBID       string            `json:"kb_id"`
	Prefix     string            `json:"prefix"`
	Query      string            `json:"query"`
	TopK       int               `json:"top_k"`
	SearchType models.SearchType `json:"search_type"`
}

type retrieveResponse struct {
	Passages []Passage `json:"passages"`
}

// Client calls the retrieval service's {kb_id, prefix, query, top_k,
// search_type} -> {passages} contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// Retrieve fetches up to kb.MaxResults passages for query, scoped to the
// tenant's own kb_id/prefix (spec §4.1 isolation: a tenant's retrieval
// never reaches another tenant's prefix because kb is always the caller's
// own TenantConfig.KnowledgeBase).
func (c *Client) Retrieve(ctx context.Context, kb models.KnowledgeBaseSettings, query string) ([]Passage, error) {
	body, err := json.Marshal(retrieveRequest{
		KBID:       kb.ID,
		Prefix:     kb.Prefix,
		Query:      query,
		TopK:       kb.MaxResults,
		SearchType: kb.SearchType,
	})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("marshal kb request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.KBUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperr.KBUnavailable(fmt.Errorf("kb service returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.CodeKBUnavailable, resp.StatusCode, false, "kb service rejected request", nil)
	}

	var rr retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, apperr.KBUnavailable(fmt.Errorf("decode kb response: %w", err))
	}
	return rr.Passages, nil
}
