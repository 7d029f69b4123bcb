package registry

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/siamtech/agent-gateway/internal/apperr"
	"github.com/siamtech/agent-gateway/internal/models"
)

// rawTenant mirrors the on-disk shape of one tenants.<id> entry (spec
// §6.1), the Go analogue of tenant_manager.py's TenantConfig dataclass.
type rawTenant struct {
	Name          string                       `mapstructure:"name"`
	Description   string                       `mapstructure:"description"`
	Language      string                       `mapstructure:"language"`
	Model         string                       `mapstructure:"model"`
	Database      models.DatabaseSettings      `mapstructure:"database"`
	KnowledgeBase models.KnowledgeBaseSettings `mapstructure:"knowledge_base"`
	APIKeys       map[string]string            `mapstructure:"api_keys"`
	Settings      models.GenerationSettings    `mapstructure:"settings"`
	Webhooks      map[string]string            `mapstructure:"webhooks"`
	ContactInfo   map[string]string            `mapstructure:"contact_info"`
}

type rawSecurity struct {
	RequireTenantHeader  bool   `mapstructure:"require_tenant_header"`
	DefaultTenantOnMiss  bool   `mapstructure:"default_tenant_on_missing"`
	TenantHeaderName     string `mapstructure:"tenant_header_name"`
}

type rawLogging struct {
	Level      string `mapstructure:"level"`
	LogQueries bool   `mapstructure:"log_queries"`
}

type rawGlobalSettings struct {
	FallbackAgent  string      `mapstructure:"fallback_agent"`
	RetryCount     int         `mapstructure:"retry_count"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	Security       rawSecurity `mapstructure:"security"`
	Logging        rawLogging  `mapstructure:"logging"`
}

type rawDocument struct {
	DefaultTenant  string               `mapstructure:"default_tenant"`
	Tenants        map[string]rawTenant `mapstructure:"tenants"`
	GlobalSettings rawGlobalSettings    `mapstructure:"global_settings"`
}

var requiredDBFields = []string{"host", "port", "database", "user", "password"}

// Load reads the tenant registry document at path (spec §6.1), expands
// ${NAME} environment references, and builds the first generation. It does
// not smoke-test any tenant's database -- PoolFor does that lazily on first
// use, per spec §4.1 "lazy mode".
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.New(apperr.CodeConfigInvalid, 0, false, "read tenant config", err)
	}

	expanded := os.Expand(string(raw), lookupEnvOrEmpty)

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return nil, apperr.New(apperr.CodeConfigInvalid, 0, false, "parse tenant config yaml", err)
	}

	var doc rawDocument
	if err := v.Unmarshal(&doc); err != nil {
		return nil, apperr.New(apperr.CodeConfigInvalid, 0, false, "unmarshal tenant config", err)
	}

	gen, err := buildGeneration(1, &doc)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		path:          path,
		gracePeriod:   60 * time.Second,
		poolsByTenant: make(map[string]*tenantPoolEntry),
	}
	r.gen.Store(gen)
	return r, nil
}

func buildGeneration(id int64, doc *rawDocument) (*generation, error) {
	if len(doc.Tenants) == 0 {
		return nil, apperr.New(apperr.CodeConfigInvalid, 0, false, "tenant config has no tenants", nil)
	}

	tenants := make(map[string]*models.TenantConfig, len(doc.Tenants))
	for tenantID, raw := range doc.Tenants {
		for _, field := range requiredDBFields {
			if isDBFieldMissing(raw.Database, field) {
				return nil, apperr.New(apperr.CodeCredentialMissing, 0, false,
					fmt.Sprintf("tenant %q missing required database field %q", tenantID, field), nil)
			}
		}

		cfg := &models.TenantConfig{
			TenantID:      tenantID,
			Name:          raw.Name,
			Description:   raw.Description,
			Language:      raw.Language,
			Model:         raw.Model,
			Database:      raw.Database,
			KnowledgeBase: raw.KnowledgeBase,
			APIKeys:       raw.APIKeys,
			Settings:      raw.Settings,
			Webhooks:      raw.Webhooks,
			ContactInfo:   raw.ContactInfo,
		}
		if cfg.Settings.ResponseLanguage == "" {
			cfg.Settings.ResponseLanguage = cfg.Language
		}
		if cfg.Settings.ResponseLanguage == "" {
			cfg.Settings.ResponseLanguage = "en"
		}
		tenants[tenantID] = cfg
	}

	defaultTenantID := doc.DefaultTenant
	if defaultTenantID != "" {
		if _, ok := tenants[defaultTenantID]; !ok {
			return nil, apperr.New(apperr.CodeConfigInvalid, 0, false,
				fmt.Sprintf("default_tenant %q is not a configured tenant", defaultTenantID), nil)
		}
	}

	policy := models.GlobalPolicy{
		RequireTenantHeader: doc.GlobalSettings.Security.RequireTenantHeader,
		DefaultOnMissing:    doc.GlobalSettings.Security.DefaultTenantOnMiss,
		TenantHeaderName:    firstNonEmpty(doc.GlobalSettings.Security.TenantHeaderName, "X-Tenant-ID"),
		FallbackAgent:       firstNonEmpty(doc.GlobalSettings.FallbackAgent, "fallback"),
		RetryCount:          firstPositive(doc.GlobalSettings.RetryCount, 3),
		TimeoutSeconds:      firstPositive(doc.GlobalSettings.TimeoutSeconds, 30),
		LogQueries:          doc.GlobalSettings.Logging.LogQueries,
	}

	return &generation{
		id:              id,
		tenants:         tenants,
		policy:          policy,
		defaultTenantID: defaultTenantID,
		loadedAt:        time.Now(),
	}, nil
}

func isDBFieldMissing(db models.DatabaseSettings, field string) bool {
	switch field {
	case "host":
		return db.Host == ""
	case "port":
		return db.Port == 0
	case "database":
		return db.Database == ""
	case "user":
		return db.User == ""
	case "password":
		return db.Password == ""
	}
	return false
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func lookupEnvOrEmpty(name string) string {
	return os.Getenv(name)
}
