package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/session"
)

type PresenceHandler struct {
	registry *session.Registry
}

func NewPresenceHandler(registry *session.Registry) *PresenceHandler {
	return &PresenceHandler{registry: registry}
}

// Get handles GET /api/v1/users/{id}/presence. Presence is derived from the
// session registry, never stored.
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	resp := map[string]any{"user_id": userID, "online": h.registry.IsOnline(userID)}
	if lastSeen, ok := h.registry.LastSeen(userID); ok {
		resp["last_seen"] = lastSeen.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}
