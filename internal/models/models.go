// Package models holds the data shapes shared across the gateway: tenant
// configuration, chat wire types, and the control-plane records the admin
// API and access logger persist.
package models

import "time"

// SearchType selects the knowledge-base retrieval strategy for a tenant.
type SearchType string

const (
	SearchSemantic SearchType = "SEMANTIC"
	SearchHybrid   SearchType = "HYBRID"
)

// AgentType identifies which agent answered (or should answer) a question.
type AgentType string

const (
	AgentAuto          AgentType = "auto"
	AgentPostgres      AgentType = "postgres"
	AgentKnowledgeBase AgentType = "knowledge_base"
	AgentFallback      AgentType = "fallback"
)

// DatabaseSettings is the per-tenant Postgres connection target.
type DatabaseSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// KnowledgeBaseSettings binds a tenant to a retrieval index and prefix.
type KnowledgeBaseSettings struct {
	ID         string     `mapstructure:"id"`
	Prefix     string     `mapstructure:"prefix"`
	Bucket     string     `mapstructure:"bucket"`
	Region     string     `mapstructure:"region"`
	SearchType SearchType `mapstructure:"search_type"`
	MaxResults int        `mapstructure:"max_results"`
}

// GenerationSettings controls per-tenant agent behavior and limits.
type GenerationSettings struct {
	MaxTokens           int     `mapstructure:"max_tokens"`
	Temperature         float64 `mapstructure:"temperature"`
	ResponseLanguage    string  `mapstructure:"response_language"`
	DefaultAgentType    string  `mapstructure:"default_agent_type"`
	EnablePostgresAgent bool    `mapstructure:"enable_postgres_agent"`
	EnableKnowledgeBase bool    `mapstructure:"enable_knowledge_base_agent"`
	EnableFallback      bool    `mapstructure:"enable_fallback_agent"`
	AllowHybridSearch   bool    `mapstructure:"allow_hybrid_search"`
	RequestsPerHour     int     `mapstructure:"requests_per_hour"`
}

// TenantConfig is the immutable, per-tenant configuration loaded from the
// tenant registry document (spec §6.1). It never changes after a Load/Reload
// publishes a new generation.
type TenantConfig struct {
	TenantID      string                `mapstructure:"-"`
	Name          string                `mapstructure:"name"`
	Description   string                `mapstructure:"description"`
	Language      string                `mapstructure:"language"`
	Database      DatabaseSettings      `mapstructure:"database"`
	KnowledgeBase KnowledgeBaseSettings `mapstructure:"knowledge_base"`
	APIKeys       map[string]string     `mapstructure:"api_keys"`
	Settings      GenerationSettings    `mapstructure:"settings"`
	Webhooks      map[string]string     `mapstructure:"webhooks"`
	ContactInfo   map[string]string     `mapstructure:"contact_info"`
	Model         string                `mapstructure:"model"`
}

// SigningKey returns the sk-<tenant-id> convention key used by the façade's
// Authorization-header extraction step.
func (t *TenantConfig) SigningKey() string {
	return "sk-" + t.TenantID
}

// GlobalPolicy is the immutable, process-wide routing and security policy
// (spec §3 GlobalPolicy).
type GlobalPolicy struct {
	RequireTenantHeader bool   `mapstructure:"require_tenant_header"`
	DefaultOnMissing    bool   `mapstructure:"default_tenant_on_missing"`
	TenantHeaderName    string `mapstructure:"tenant_header_name"`
	FallbackAgent       string `mapstructure:"fallback_agent"`
	RetryCount          int    `mapstructure:"retry_count"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	LogQueries          bool   `mapstructure:"log_queries"`
}

// ChatMessage is one OpenAI-style chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the façade's decoded representation of an inbound
// /v1/chat/completions body plus the tenant id resolved for it.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TenantID    string        `json:"tenant_id,omitempty"`
	AgentType   AgentType     `json:"agent_type,omitempty"`

	// ResolvedTenantID and RequestID are not part of the wire format; the
	// chat handler does not set them.
	ResolvedTenantID string `json:"-"`
	RequestID        string `json:"-"`
}

// LastUserMessage returns the content of the most recent user message, which
// is the question passed to the dispatcher.
func (r *ChatRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	if len(r.Messages) > 0 {
		return r.Messages[len(r.Messages)-1].Content
	}
	return ""
}

// Usage mirrors the OpenAI usage object.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the non-streaming façade response envelope.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionChunk is one SSE delta frame.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

type ChunkChoice struct {
	Index int   `json:"index"`
	Delta Delta `json:"delta"`
}

type Delta struct {
	Content string `json:"content,omitempty"`
}

// AccessLog records one completed (or rejected) chat request for the
// control-plane analytics surface.
type AccessLog struct {
	ID             int64     `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int       `json:"response_time_ms"`
	RequestSize    int64     `json:"request_size"`
	ResponseSize   int64     `json:"response_size"`
	AgentUsed      string    `json:"agent_used"`
	SQLExecuted    bool      `json:"sql_executed"`
	Timestamp      time.Time `json:"timestamp"`
}

// TenantAPIKey binds a façade-issued sk-<tenant> key to a tenant id in the
// control-plane store (admin-managed, independent of the YAML registry).
type TenantAPIKey struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenant_id"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// TenantSummary is the secret-free tenant view returned by GET /tenants.
type TenantSummary struct {
	TenantID             string `json:"tenant_id"`
	Name                 string `json:"name"`
	Language             string `json:"language"`
	PostgresEnabled      bool   `json:"postgres_enabled"`
	KnowledgeBaseEnabled bool   `json:"knowledge_base_enabled"`
	FallbackEnabled      bool   `json:"fallback_enabled"`
}
