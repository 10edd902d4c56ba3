package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"github.com/vedran77/relay/internal/router"
	"github.com/vedran77/relay/pkg/validator"
)

// MessageService owns message writes and the reaction/edit rules: sender-only
// edit and delete, one reaction per user, last committed write wins on
// concurrent edits. Every successful mutation commits first and then hands
// the result to the router; authorization failures never broadcast.
type MessageService struct {
	repo   repository.MessageRepository
	router *router.Router

	// edits serializes mutations per message id. Reactions skip it; the
	// store's per-row upsert is atomic on its own.
	edits *keyedMutex
}

func NewMessageService(repo repository.MessageRepository, rt *router.Router) *MessageService {
	return &MessageService{
		repo:   repo,
		router: rt,
		edits:  newKeyedMutex(),
	}
}

type CreateMessageInput struct {
	Content     string              `json:"content"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	ReplyTo     *uuid.UUID          `json:"reply_to,omitempty"`
}

func (s *MessageService) Create(ctx context.Context, conversationID, senderID uuid.UUID, input CreateMessageInput) (*domain.Message, error) {
	if errs := validator.ValidateMessage(input.Content, len(input.Attachments)); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, errs["content"])
	}
	content := strings.TrimSpace(input.Content)
	for _, att := range input.Attachments {
		if att.Locator == "" {
			return nil, fmt.Errorf("%w: attachment without locator", domain.ErrValidation)
		}
	}

	if input.ReplyTo != nil {
		target, err := s.repo.GetByID(ctx, *input.ReplyTo)
		if err != nil {
			return nil, err
		}
		if target == nil || target.ConversationID != conversationID {
			return nil, fmt.Errorf("%w: reply target is not in this conversation", domain.ErrValidation)
		}
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Attachments:    input.Attachments,
		ReplyTo:        input.ReplyTo,
		CreatedAt:      time.Now(),
	}
	if content != "" {
		msg.Content = &content
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	// The sender already holds the authoritative response, so the broadcast
	// skips them.
	if evt, err := router.NewEvent(router.EventTypeMessageNew, &conversationID, router.MessagePayload{Message: *msg}); err == nil {
		s.router.Publish(ctx, conversationID, evt, &senderID)
	}
	return msg, nil
}

func (s *MessageService) List(ctx context.Context, conversationID uuid.UUID, after *uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.repo.ListByConversation(ctx, conversationID, after, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

func (s *MessageService) Get(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	return msg, nil
}

func (s *MessageService) Edit(ctx context.Context, editorID, messageID uuid.UUID, newContent string) (*domain.Message, error) {
	if errs := validator.ValidateMessage(newContent, 0); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, errs["content"])
	}
	newContent = strings.TrimSpace(newContent)

	s.edits.lock(messageID)
	defer s.edits.unlock(messageID)

	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.ErrNotFound
	}
	if msg.SenderID != editorID {
		return nil, fmt.Errorf("%w: only the sender can edit a message", domain.ErrForbidden)
	}

	if err := s.repo.UpdateContent(ctx, messageID, newContent); err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}
	updated, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}

	if evt, err := router.NewEvent(router.EventTypeMessageEdited, &updated.ConversationID, router.MessagePayload{Message: *updated}); err == nil {
		s.router.Publish(ctx, updated.ConversationID, evt, nil)
	}
	return updated, nil
}

func (s *MessageService) Delete(ctx context.Context, requesterID, messageID uuid.UUID) error {
	s.edits.lock(messageID)
	defer s.edits.unlock(messageID)

	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return domain.ErrNotFound
	}
	if msg.SenderID != requesterID {
		return fmt.Errorf("%w: only the sender can delete a message", domain.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, messageID); err != nil {
		return err
	}

	if evt, err := router.NewEvent(router.EventTypeMessageDeleted, &msg.ConversationID, router.MessageDeletedPayload{ID: messageID}); err == nil {
		s.router.Publish(ctx, msg.ConversationID, evt, nil)
	}
	return nil
}

func (s *MessageService) SetReaction(ctx context.Context, userID, messageID uuid.UUID, emoji string) (*domain.Message, error) {
	if errs := validator.ValidateEmoji(emoji); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, errs["emoji"])
	}
	emoji = strings.TrimSpace(emoji)

	if msg, err := s.repo.GetByID(ctx, messageID); err != nil {
		return nil, err
	} else if msg == nil {
		return nil, domain.ErrNotFound
	}

	if err := s.repo.SetReaction(ctx, messageID, userID, emoji); err != nil {
		return nil, err
	}
	return s.publishReactions(ctx, messageID)
}

func (s *MessageService) ClearReaction(ctx context.Context, userID, messageID uuid.UUID) (*domain.Message, error) {
	if msg, err := s.repo.GetByID(ctx, messageID); err != nil {
		return nil, err
	} else if msg == nil {
		return nil, domain.ErrNotFound
	}

	if err := s.repo.ClearReaction(ctx, messageID, userID); err != nil {
		return nil, err
	}
	return s.publishReactions(ctx, messageID)
}

func (s *MessageService) publishReactions(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		// Deleted between the write and the read-back; the live update is
		// simply dropped.
		return nil, domain.ErrNotFound
	}

	payload := router.ReactionChangedPayload{MessageID: messageID, Reactions: msg.Reactions}
	if evt, err := router.NewEvent(router.EventTypeReactionChanged, &msg.ConversationID, payload); err == nil {
		s.router.Publish(ctx, msg.ConversationID, evt, nil)
	}
	return msg, nil
}
