// Package config loads the process's bootstrap settings: everything needed
// before the Tenant Registry itself can be loaded. It keeps the teacher's
// godotenv + os.Getenv idiom for this process-level layer; the richer
// per-tenant document lives in internal/registry and is parsed with viper.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// RedisURL backs the dispatcher's route-classification cache.
	RedisURL string
	// JWTSecret signs the admin-surface bearer tokens issued by /auth/token.
	JWTSecret string
	// OperatorToken is the shared secret /auth/token exchanges for a signed
	// JWT; there is no per-operator account store, only this one credential.
	OperatorToken string
	ServerPort    string

	// ControlPlaneDatabaseURL is the admin/analytics database (access logs,
	// issued API keys) -- distinct from any tenant's own database.
	ControlPlaneDatabaseURL string

	// TenantConfigPath points at the YAML tenant registry document (spec
	// §6.1), loaded by internal/registry.
	TenantConfigPath string

	// LLMBaseURL/LLMAPIKey configure the OpenAI-compatible upstream the
	// llm.Provider talks to.
	LLMBaseURL string
	LLMAPIKey  string

	// KnowledgeBaseURL is the retrieval service the knowledge-base agent
	// calls (spec §6.4).
	KnowledgeBaseURL string

	// StrictMode, when true, makes a failure to set up the control-plane
	// DB at start fatal (exit code 65) instead of deferred/lazy. The LLM
	// provider is not contacted at start, in either mode.
	StrictMode bool

	MetricsPort string
}

func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		RedisURL:                getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:               getEnv("JWT_SECRET", "secret"),
		OperatorToken:           getEnv("OPERATOR_TOKEN", ""),
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ControlPlaneDatabaseURL: getEnv("CONTROL_PLANE_DATABASE_URL", ""),
		TenantConfigPath:        getEnv("TENANT_CONFIG_PATH", "tenant_config.yaml"),
		LLMBaseURL:              getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMAPIKey:               getEnv("LLM_API_KEY", ""),
		KnowledgeBaseURL:        getEnv("KNOWLEDGE_BASE_URL", "http://localhost:5001"),
		StrictMode:              getEnvBool("STRICT_MODE", false),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultVal
	}
	return v
}
