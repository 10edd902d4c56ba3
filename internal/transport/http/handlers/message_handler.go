package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/transport/http/middleware"
)

type MessageHandler struct {
	messages *service.MessageService
}

func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Create handles POST /api/v1/conversations/{id}/messages.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var input service.CreateMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	msg, err := h.messages.Create(r.Context(), conversationID, userID, input)
	if err != nil {
		writeServiceError(w, "create message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// List handles GET /api/v1/conversations/{id}/messages?after=&limit=.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid conversation ID")
		return
	}

	var after *uuid.UUID
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		id, err := uuid.Parse(afterStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid after cursor")
			return
		}
		after = &id
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	messages, err := h.messages.List(r.Context(), conversationID, after, limit)
	if err != nil {
		writeServiceError(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// Get handles GET /api/v1/messages/{id}.
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	msg, err := h.messages.Get(r.Context(), messageID)
	if err != nil {
		writeServiceError(w, "get message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Edit handles PUT /api/v1/messages/{id}.
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var input struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	msg, err := h.messages.Edit(r.Context(), userID, messageID, input.Content)
	if err != nil {
		writeServiceError(w, "edit message", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /api/v1/messages/{id}.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	if err := h.messages.Delete(r.Context(), userID, messageID); err != nil {
		writeServiceError(w, "delete message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetReaction handles PUT /api/v1/messages/{id}/reaction.
func (h *MessageHandler) SetReaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var input struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	msg, err := h.messages.SetReaction(r.Context(), userID, messageID, input.Emoji)
	if err != nil {
		writeServiceError(w, "set reaction", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// ClearReaction handles DELETE /api/v1/messages/{id}/reaction.
func (h *MessageHandler) ClearReaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	msg, err := h.messages.ClearReaction(r.Context(), userID, messageID)
	if err != nil {
		writeServiceError(w, "clear reaction", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
