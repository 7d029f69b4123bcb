package registry

import (
	"strings"

	"github.com/siamtech/agent-gateway/internal/apperr"
)

// Resolve implements the §4.2 tenant-extraction order: header → API-key
// prefix → model-name prefix → body tenant_id → default tenant (if the
// policy allows defaulting). The first non-empty signal wins; Resolve is
// idempotent (spec §8: Resolve(Resolve(hint)) == Resolve(hint)) because it
// is a pure function of the hint and the currently published generation.
func (r *Registry) Resolve(hint ResolutionHint) (*TenantRuntime, error) {
	g := r.gen.Load()

	headerID := strings.TrimSpace(hint.HeaderTenantID)
	keyID := tenantIDFromAPIKey(hint.AuthHeader)
	modelID := g.matchModelPrefix(hint.Model)
	bodyID := strings.TrimSpace(hint.BodyTenantID)

	if headerID != "" && bodyID != "" && headerID != bodyID {
		return nil, apperr.TenantConflict()
	}

	candidate := firstNonEmptyOf(headerID, keyID, modelID, bodyID)

	if candidate == "" {
		if !g.policy.DefaultOnMissing || g.defaultTenantID == "" {
			return nil, apperr.TenantRequired()
		}
		candidate = g.defaultTenantID
	}

	cfg, ok := g.lookup(candidate)
	if !ok {
		return nil, apperr.TenantUnknown(candidate)
	}

	return &TenantRuntime{Config: cfg, Policy: g.policy, generation: g.id}, nil
}

// tenantIDFromAPIKey extracts <tenant-id> from an "Authorization: Bearer
// sk-<tenant-id>" header, mirroring the sk-<tenant> convention of spec §4.2.
func tenantIDFromAPIKey(authHeader string) string {
	parts := strings.Fields(authHeader)
	var token string
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		token = parts[1]
	} else if len(parts) == 1 {
		token = parts[0]
	}
	if !strings.HasPrefix(token, "sk-") {
		return ""
	}
	return strings.TrimPrefix(token, "sk-")
}

// matchModelPrefix extracts <tenant-id> from the "<tenant-id>-<model>"
// model-name convention of spec §4.2. Tenant ids may themselves contain
// hyphens (e.g. "company-a"), so the match is against the registry's known
// tenant ids rather than a naive split on the first hyphen; the longest
// matching id wins to disambiguate a tenant id that is itself a prefix of
// another (e.g. "company" vs "company-a").
func (g *generation) matchModelPrefix(model string) string {
	if model == "" {
		return ""
	}
	best := ""
	for id := range g.tenants {
		if model == id || strings.HasPrefix(model, id+"-") {
			if len(id) > len(best) {
				best = id
			}
		}
	}
	return best
}

func firstNonEmptyOf(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
