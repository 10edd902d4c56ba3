package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// MessageRepository is the durable message store. It owns message content,
// edit state, reactions and receipt sets, and knows nothing about live
// connections.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// ListByConversation returns messages ordered by creation time ascending.
	// A non-nil after cursor returns only messages created after that message,
	// so already-returned pages never reorder under concurrent inserts.
	ListByConversation(ctx context.Context, conversationID uuid.UUID, after *uuid.UUID, limit int) ([]domain.Message, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
	Delete(ctx context.Context, id uuid.UUID) error

	// SetReaction replaces any existing reaction from the same user.
	SetReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error
	ClearReaction(ctx context.Context, messageID, userID uuid.UUID) error

	// Receipt inserts are idempotent; marking an already-marked message is a
	// no-op, not an error. Receipt sets only grow.
	MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) error
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) error

	// Bulk receipt operations return the ids of messages actually affected,
	// skipping the user's own messages and already-marked ones. Read implies
	// delivered.
	MarkConversationDelivered(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error)
	MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error)
}
