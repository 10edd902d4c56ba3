package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
)

// MessageRepo is an in-memory MessageRepository. It backs the test suites and
// is good enough for single-node development without a database.
type MessageRepo struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]*record
	order    []uuid.UUID // creation order, append-only
}

type record struct {
	msg       domain.Message
	reactions map[uuid.UUID]string    // userID -> emoji
	delivered map[uuid.UUID]time.Time // userID -> delivered at
	read      map[uuid.UUID]struct{}
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{messages: make(map[uuid.UUID]*record)}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &record{
		msg:       *msg,
		reactions: make(map[uuid.UUID]string),
		delivered: map[uuid.UUID]time.Time{msg.SenderID: msg.CreatedAt},
		read:      map[uuid.UUID]struct{}{msg.SenderID: {}},
	}
	r.messages[msg.ID] = rec
	r.order = append(r.order, msg.ID)

	msg.DeliveredTo = []uuid.UUID{msg.SenderID}
	msg.ReadBy = []uuid.UUID{msg.SenderID}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	msg := rec.snapshot()
	return &msg, nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, after *uuid.UUID, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// order is append-only, so a cursor taken from an earlier page stays
	// valid while new messages arrive.
	started := after == nil
	var out []domain.Message
	for _, id := range r.order {
		if !started {
			if id == *after {
				started = true
			}
			continue
		}
		rec, ok := r.messages[id]
		if !ok || rec.msg.ConversationID != conversationID {
			continue
		}
		out = append(out, rec.snapshot())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	rec.msg.Content = &content
	rec.msg.Edited = true
	rec.msg.EditedAt = &now
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.messages, id)
	return nil
}

func (r *MessageRepo) SetReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.messages[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.reactions[userID] = emoji
	return nil
}

func (r *MessageRepo) ClearReaction(ctx context.Context, messageID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.messages[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(rec.reactions, userID)
	return nil
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.messages[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, seen := rec.delivered[userID]; !seen {
		rec.delivered[userID] = time.Now()
	}
	return nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.messages[messageID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, seen := rec.delivered[userID]; !seen {
		rec.delivered[userID] = time.Now()
	}
	rec.read[userID] = struct{}{}
	return nil
}

func (r *MessageRepo) MarkConversationDelivered(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []uuid.UUID
	for _, id := range r.order {
		rec, ok := r.messages[id]
		if !ok || rec.msg.ConversationID != conversationID || rec.msg.SenderID == userID {
			continue
		}
		if _, seen := rec.delivered[userID]; seen {
			continue
		}
		rec.delivered[userID] = time.Now()
		affected = append(affected, id)
	}
	return affected, nil
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []uuid.UUID
	for _, id := range r.order {
		rec, ok := r.messages[id]
		if !ok || rec.msg.ConversationID != conversationID || rec.msg.SenderID == userID {
			continue
		}
		if _, seen := rec.read[userID]; seen {
			continue
		}
		if _, seen := rec.delivered[userID]; !seen {
			rec.delivered[userID] = time.Now()
		}
		rec.read[userID] = struct{}{}
		affected = append(affected, id)
	}
	return affected, nil
}

// snapshot copies the record into a detached Message. Receipt and reaction
// slices are rebuilt so callers can't mutate shared state.
func (rec *record) snapshot() domain.Message {
	msg := rec.msg

	if len(rec.reactions) > 0 {
		msg.Reactions = make([]domain.Reaction, 0, len(rec.reactions))
		for userID, emoji := range rec.reactions {
			msg.Reactions = append(msg.Reactions, domain.Reaction{UserID: userID, Emoji: emoji})
		}
		sort.Slice(msg.Reactions, func(i, j int) bool {
			return msg.Reactions[i].UserID.String() < msg.Reactions[j].UserID.String()
		})
	}

	msg.DeliveredTo = make([]uuid.UUID, 0, len(rec.delivered))
	for userID := range rec.delivered {
		msg.DeliveredTo = append(msg.DeliveredTo, userID)
	}
	msg.ReadBy = make([]uuid.UUID, 0, len(rec.read))
	for userID := range rec.read {
		msg.ReadBy = append(msg.ReadBy, userID)
	}
	sortIDs(msg.DeliveredTo)
	sortIDs(msg.ReadBy)
	return msg
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
