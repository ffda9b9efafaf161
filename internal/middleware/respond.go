package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/apetweet-labs/swap_layer/internal/errors"
)

// writeServiceError renders the shared {"error": ..., "details": ...}
// envelope used by the API handlers.
func writeServiceError(w http.ResponseWriter, svcErr *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)

	body := map[string]interface{}{"error": svcErr.Message}
	if len(svcErr.Details) > 0 {
		body["details"] = svcErr.Details
	}
	_ = json.NewEncoder(w).Encode(body)
}
