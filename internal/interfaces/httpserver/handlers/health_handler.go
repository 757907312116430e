package handlers

import (
	"net/http"

	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/responses"
)

// HandleHealth handles GET /healthz
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	responses.JSON(w, r, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "agent-engine",
	})
}
