package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/membership"
)

type MembershipHandler struct {
	index *membership.Index
}

func NewMembershipHandler(index *membership.Index) *MembershipHandler {
	return &MembershipHandler{index: index}
}

// Changed handles POST /internal/v1/conversations/{id}/membership-changed,
// the push notification from the membership service. The cached member set
// is dropped and re-read on the next fan-out; nothing is polled.
func (h *MembershipHandler) Changed(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	h.index.Invalidate(conversationID)
	w.WriteHeader(http.StatusNoContent)
}
