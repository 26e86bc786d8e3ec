package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fieldops/taskbot/internal/models"
)

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("writeJSONResponse: failed to encode response", "error", err, "status_code", statusCode)
	}
}
