package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/llm"
	"github.com/siamtech/agent-gateway/internal/models"
)

// GeneratedQuery is the ephemeral candidate SQL the LLM proposes (spec §3
// "GeneratedQuery"). It is never persisted; execute consumes it.
type GeneratedQuery struct {
	SQL       string
	Params    []any
	Rationale string
}

const safetyPreamble = `You translate natural-language questions into a single, read-only PostgreSQL SELECT statement.
Rules:
- Output exactly one SQL statement. It must be a SELECT, or a read-only CTE whose final statement is a SELECT.
- Never use INSERT, UPDATE, DELETE, DROP, TRUNCATE, ALTER, CREATE, GRANT, REVOKE, COPY, CALL, DO, VACUUM, ANALYZE, or LOCK.
- Parameterize every literal value from the question using $1, $2, ... placeholders; never inline a literal that came from the user's wording.
- Only reference the tables listed in the schema summary below.
- Respond with a single JSON object: {"sql": "...", "params": [...], "rationale": "..."}. No prose outside the JSON.`

// generateSQL asks the LLM Provider for a candidate query (spec §4.4 step
// 2), optionally including a reason the previous attempt was rejected so
// the model can self-correct on the two-strike re-prompt.
func generateSQL(ctx context.Context, provider llm.Provider, model, tenantID, schemaSummary, question, responseLanguage, rejectionReason string) (*GeneratedQuery, error) {
	system := safetyPreamble + "\n\nSchema summary:\n" + schemaSummary + "\n\nRespond in a way that fits a " + responseLanguage + "-language final answer."

	userContent := question
	if rejectionReason != "" {
		userContent = fmt.Sprintf("%s\n\nYour previous SQL was rejected: %s. Produce a corrected query.", question, rejectionReason)
	}

	result, err := provider.Complete(ctx, llm.CompletionRequest{
		Model:        model,
		SystemPrompt: system,
		Messages:     []models.ChatMessage{{Role: "user", Content: userContent}},
		Temperature:  0,
		MaxTokens:    512,
		TenantID:     tenantID,
	})
	if err != nil {
		return nil, err
	}

	return parseGeneratedQuery(result.Content)
}

// wireGeneratedQuery mirrors the {sql, params[], rationale} structured
// object spec §4.4 step 2 requires the model to return.
type wireGeneratedQuery struct {
	SQL       string `json:"sql"`
	Params    []any  `json:"params"`
	Rationale string `json:"rationale"`
}

func parseGeneratedQuery(content string) (*GeneratedQuery, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, apperr.New(apperr.CodeSQLRejected, 422, true, "LLM response contained no JSON object", nil)
	}

	var wq wireGeneratedQuery
	if err := json.Unmarshal([]byte(raw), &wq); err != nil {
		return nil, apperr.New(apperr.CodeSQLRejected, 422, true, "LLM response was not valid JSON: "+err.Error(), nil)
	}
	if strings.TrimSpace(wq.SQL) == "" {
		return nil, apperr.New(apperr.CodeSQLRejected, 422, true, "LLM response had an empty sql field", nil)
	}

	return &GeneratedQuery{SQL: wq.SQL, Params: wq.Params, Rationale: wq.Rationale}, nil
}

// extractJSONObject finds the first top-level {...} object in content,
// tolerating the model wrapping it in prose or a markdown code fence.
func extractJSONObject(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case inString:
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
