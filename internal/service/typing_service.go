package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/router"
)

// TypingService relays typing indicators. Nothing is persisted and repeated
// start calls are not deduplicated; clients time the indicator out.
type TypingService struct {
	router *router.Router
}

func NewTypingService(rt *router.Router) *TypingService {
	return &TypingService{router: rt}
}

func (s *TypingService) Start(ctx context.Context, conversationID, userID uuid.UUID) {
	s.publish(ctx, router.EventTypeTypingStart, conversationID, userID)
}

func (s *TypingService) Stop(ctx context.Context, conversationID, userID uuid.UUID) {
	s.publish(ctx, router.EventTypeTypingStop, conversationID, userID)
}

func (s *TypingService) publish(ctx context.Context, eventType string, conversationID, userID uuid.UUID) {
	evt, err := router.NewEvent(eventType, &conversationID, router.TypingPayload{UserID: userID})
	if err != nil {
		return
	}
	s.router.Publish(ctx, conversationID, evt, &userID)
}
