package router

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// Event types - Server → Client
const (
	EventTypeMessageNew      = "message.new"
	EventTypeMessageEdited   = "message.edited"
	EventTypeMessageDeleted  = "message.deleted"
	EventTypeReactionChanged = "reaction.changed"
	EventTypeReceiptChanged  = "receipt.changed"
	EventTypeTypingStart     = "typing.start"
	EventTypeTypingStop      = "typing.stop"
	EventTypePresence        = "presence"
	EventTypePong            = "pong"
	EventTypeError           = "error"
)

// Event types - Client → Server (handled by the transport layer)
const (
	EventTypeReceiptDelivered = "receipt.delivered"
	EventTypeReceiptRead      = "receipt.read"
	EventTypePing             = "ping"
)

// Event is the envelope every live update travels in.
type Event struct {
	Type           string          `json:"type"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      int64           `json:"ts,omitempty"`
}

// --- Server → Client payloads ---

type MessagePayload struct {
	domain.Message
}

type MessageDeletedPayload struct {
	ID uuid.UUID `json:"id"`
}

// ReactionChangedPayload carries the full current reaction set so clients
// replace rather than merge.
type ReactionChangedPayload struct {
	MessageID uuid.UUID         `json:"message_id"`
	Reactions []domain.Reaction `json:"reactions"`
}

type ReceiptChangedPayload struct {
	UserID     uuid.UUID   `json:"user_id"`
	Kind       string      `json:"kind"` // "delivered" | "read"
	MessageIDs []uuid.UUID `json:"message_ids"`
}

type TypingPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type PresencePayload struct {
	UserID   uuid.UUID  `json:"user_id"`
	Status   string     `json:"status"` // "online" | "offline"
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, conversationID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        data,
		Timestamp:      time.Now().Unix(),
	}, nil
}
