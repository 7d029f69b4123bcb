package chatapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/siamtech/agent-gateway/internal/apperr"
)

// wireError is the façade's error envelope, shaped like OpenAI's so
// existing SDKs surface it the same way (spec §7).
type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// writeAPIError renders err's public-safe Message to the client and logs
// err.Error() (which includes any wrapped Cause -- DB DSNs, provider
// bodies, stack-adjacent detail) server-side only, per spec §7 "internal
// messages are logged, not returned."
func writeAPIError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatusFor(err)
	code := apperr.CodeFor(err)
	message := apperr.PublicMessage(err)

	if ae, ok := apperr.As(err); !ok || ae.Cause != nil {
		log.Printf("chatapi: request failed with %s: %v", code, err)
	}

	var resp wireError
	resp.Error.Message = message
	resp.Error.Type = string(code)
	resp.Error.Code = string(code)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
