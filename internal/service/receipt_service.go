package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"github.com/vedran77/relay/internal/router"
)

// ReceiptService applies delivery and read acknowledgements in bulk.
// Acknowledgements for the same conversation run under a per-conversation
// lock so duplicate client retries collapse: the second call finds nothing
// left to mark and returns an empty set, which callers treat as a no-op.
type ReceiptService struct {
	repo   repository.MessageRepository
	router *router.Router

	convs *keyedMutex
}

func NewReceiptService(repo repository.MessageRepository, rt *router.Router) *ReceiptService {
	return &ReceiptService{
		repo:   repo,
		router: rt,
		convs:  newKeyedMutex(),
	}
}

// AcknowledgeDelivered marks every message in the conversation that the user
// did not send and has not yet received as delivered, and returns the
// affected message ids.
func (s *ReceiptService) AcknowledgeDelivered(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	s.convs.lock(conversationID)
	affected, err := s.repo.MarkConversationDelivered(ctx, conversationID, userID)
	s.convs.unlock(conversationID)
	if err != nil {
		return nil, err
	}

	s.publishChanged(ctx, conversationID, userID, "delivered", affected)
	return affected, nil
}

// AcknowledgeRead marks messages as read, which implies delivered.
func (s *ReceiptService) AcknowledgeRead(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	s.convs.lock(conversationID)
	affected, err := s.repo.MarkConversationRead(ctx, conversationID, userID)
	s.convs.unlock(conversationID)
	if err != nil {
		return nil, err
	}

	s.publishChanged(ctx, conversationID, userID, "read", affected)
	return affected, nil
}

// AcknowledgeMessageDelivered records delivery of a single message, for
// clients that ack per message as events arrive.
func (s *ReceiptService) AcknowledgeMessageDelivered(ctx context.Context, messageID, userID uuid.UUID) error {
	msg, err := s.repo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return domain.ErrNotFound
	}
	if msg.SenderID == userID {
		return nil
	}
	for _, id := range msg.DeliveredTo {
		if id == userID {
			return nil
		}
	}

	if err := s.repo.MarkDelivered(ctx, messageID, userID); err != nil {
		return err
	}
	s.publishChanged(ctx, msg.ConversationID, userID, "delivered", []uuid.UUID{messageID})
	return nil
}

// publishChanged fans the receipt update out to the rest of the
// conversation. The acknowledging user is excluded: their own call already
// returned the affected ids, and their other devices converge by retrying
// the acknowledgement themselves. An empty affected set publishes nothing.
func (s *ReceiptService) publishChanged(ctx context.Context, conversationID, userID uuid.UUID, kind string, affected []uuid.UUID) {
	if len(affected) == 0 {
		return
	}
	payload := router.ReceiptChangedPayload{UserID: userID, Kind: kind, MessageIDs: affected}
	if evt, err := router.NewEvent(router.EventTypeReceiptChanged, &conversationID, payload); err == nil {
		s.router.Publish(ctx, conversationID, evt, &userID)
	}
}
