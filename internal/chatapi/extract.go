package chatapi

import (
	"github.com/siamtech/agent-gateway/internal/models"
	"github.com/siamtech/agent-gateway/internal/registry"
)

// hintFromRequest builds a registry.ResolutionHint from everything the
// façade can read off the HTTP request and decoded body, in the raw form
// Resolve itself parses (spec §4.2).
func hintFromRequest(headerTenantID, authHeader string, body models.ChatRequest) registry.ResolutionHint {
	return registry.ResolutionHint{
		HeaderTenantID: headerTenantID,
		AuthHeader:     authHeader,
		Model:          body.Model,
		BodyTenantID:   body.TenantID,
	}
}
