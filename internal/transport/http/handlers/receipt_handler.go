package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type ReceiptHandler struct {
	receipts *service.ReceiptService
}

func NewReceiptHandler(receipts *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// AcknowledgeDelivered handles POST /api/v1/conversations/{id}/delivered.
func (h *ReceiptHandler) AcknowledgeDelivered(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, h.receipts.AcknowledgeDelivered)
}

// AcknowledgeRead handles POST /api/v1/conversations/{id}/read.
func (h *ReceiptHandler) AcknowledgeRead(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, h.receipts.AcknowledgeRead)
}

// acknowledge runs a bulk acknowledgement and returns the affected message
// ids. An empty list means everything was already acknowledged; clients
// treat it as a no-op, never as an error.
func (h *ReceiptHandler) acknowledge(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error)) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	affected, err := fn(r.Context(), conversationID, userID)
	if err != nil {
		writeServiceError(w, "acknowledge receipts", err)
		return
	}
	if affected == nil {
		affected = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected_message_ids": affected})
}
