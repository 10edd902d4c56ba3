package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID             uuid.UUID    `json:"id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	SenderID       uuid.UUID    `json:"sender_id"`
	Content        *string      `json:"content,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReplyTo        *uuid.UUID   `json:"reply_to,omitempty"`
	Edited         bool         `json:"edited"`
	EditedAt       *time.Time   `json:"edited_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
	DeliveredTo    []uuid.UUID  `json:"delivered_to,omitempty"`
	ReadBy         []uuid.UUID  `json:"read_by,omitempty"`
}

// Reaction has no identity of its own; it lives and dies with its message.
// At most one reaction per (message, user): a new one replaces the old.
type Reaction struct {
	UserID uuid.UUID `json:"user_id"`
	Emoji  string    `json:"emoji"`
}

// Attachment holds the locator and metadata returned by the external content
// store. The bytes themselves never pass through this service.
type Attachment struct {
	Locator     string `json:"locator"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}
