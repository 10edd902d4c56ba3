package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/relay/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// storeErr keeps the taxonomy intact: anything the database refuses for
// operational reasons surfaces as ErrStoreUnavailable so callers know to
// retry the whole action.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin create message", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, attachments, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, attachments, msg.ReplyTo, msg.CreatedAt,
	)
	if err != nil {
		return storeErr("insert message", err)
	}

	// The sender has trivially received their own message, so the delivered
	// and read sets start as exactly {sender}.
	_, err = tx.Exec(ctx, `
		INSERT INTO message_receipts (message_id, user_id, delivered_at, read_at)
		VALUES ($1, $2, $3, $3)`,
		msg.ID, msg.SenderID, msg.CreatedAt,
	)
	if err != nil {
		return storeErr("insert sender receipt", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit create message", err)
	}
	msg.DeliveredTo = []uuid.UUID{msg.SenderID}
	msg.ReadBy = []uuid.UUID{msg.SenderID}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := r.scanMessage(ctx, `
		SELECT id, conversation_id, sender_id, content, attachments, reply_to, edited_at, created_at
		FROM messages WHERE id = $1`, id)
	if err != nil || msg == nil {
		return msg, err
	}
	if err := r.loadDetails(ctx, []*domain.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, after *uuid.UUID, limit int) ([]domain.Message, error) {
	var rows pgx.Rows
	var err error

	if after != nil {
		// Cursor pagination on (created_at, id): newly created messages sort
		// strictly after the cursor, so earlier pages never reorder.
		rows, err = r.pool.Query(ctx, `
			SELECT id, conversation_id, sender_id, content, attachments, reply_to, edited_at, created_at
			FROM messages
			WHERE conversation_id = $1
				AND (created_at, id) > (SELECT created_at, id FROM messages WHERE id = $2)
			ORDER BY created_at, id
			LIMIT $3`, conversationID, *after, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, conversation_id, sender_id, content, attachments, reply_to, edited_at, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at, id
			LIMIT $2`, conversationID, limit)
	}
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate messages", err)
	}

	ptrs := make([]*domain.Message, len(messages))
	for i := range messages {
		ptrs[i] = &messages[i]
	}
	if err := r.loadDetails(ctx, ptrs); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET content = $1, edited_at = now() WHERE id = $2`, content, id)
	if err != nil {
		return storeErr("update message", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	// Hard delete; reactions and receipts cascade. Dangling reply_to
	// references are allowed and resolved by readers.
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete message", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) SetReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET emoji = excluded.emoji, created_at = excluded.created_at`,
		messageID, userID, emoji,
	)
	if err != nil {
		return storeErr("set reaction", err)
	}
	return nil
}

func (r *MessageRepo) ClearReaction(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`, messageID, userID)
	if err != nil {
		return storeErr("clear reaction", err)
	}
	return nil
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_receipts (message_id, user_id, delivered_at)
		VALUES ($1, $2, now())
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID,
	)
	if err != nil {
		return storeErr("mark delivered", err)
	}
	return nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_receipts (message_id, user_id, delivered_at, read_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET read_at = COALESCE(message_receipts.read_at, excluded.read_at)`,
		messageID, userID,
	)
	if err != nil {
		return storeErr("mark read", err)
	}
	return nil
}

func (r *MessageRepo) MarkConversationDelivered(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		INSERT INTO message_receipts (message_id, user_id, delivered_at)
		SELECT m.id, $2, now() FROM messages m
		WHERE m.conversation_id = $1 AND m.sender_id <> $2
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id`,
		conversationID, userID,
	)
	if err != nil {
		return nil, storeErr("mark conversation delivered", err)
	}
	return collectIDs(rows)
}

func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		INSERT INTO message_receipts (message_id, user_id, delivered_at, read_at)
		SELECT m.id, $2, now(), now() FROM messages m
		WHERE m.conversation_id = $1 AND m.sender_id <> $2
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET read_at = excluded.read_at
		WHERE message_receipts.read_at IS NULL
		RETURNING message_id`,
		conversationID, userID,
	)
	if err != nil {
		return nil, storeErr("mark conversation read", err)
	}
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan affected id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate affected ids", err)
	}
	return ids, nil
}

func (r *MessageRepo) scanMessage(ctx context.Context, query string, args ...any) (*domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query message", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storeErr("query message", err)
		}
		return nil, nil
	}
	return scanMessageRow(rows)
}

func scanMessageRow(rows pgx.Rows) (*domain.Message, error) {
	var msg domain.Message
	var attachments []byte
	if err := rows.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
		&attachments, &msg.ReplyTo, &msg.EditedAt, &msg.CreatedAt,
	); err != nil {
		return nil, storeErr("scan message", err)
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	msg.Edited = msg.EditedAt != nil
	return &msg, nil
}

// loadDetails batch-loads reactions and receipts for the given messages,
// avoiding a query per message on list pages.
func (r *MessageRepo) loadDetails(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(messages))
	byID := make(map[uuid.UUID]*domain.Message, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
		byID[msg.ID] = msg
	}

	rows, err := r.pool.Query(ctx, `
		SELECT message_id, user_id, emoji FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at, user_id`, ids)
	if err != nil {
		return storeErr("load reactions", err)
	}
	for rows.Next() {
		var messageID uuid.UUID
		var reaction domain.Reaction
		if err := rows.Scan(&messageID, &reaction.UserID, &reaction.Emoji); err != nil {
			rows.Close()
			return storeErr("scan reaction", err)
		}
		byID[messageID].Reactions = append(byID[messageID].Reactions, reaction)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storeErr("iterate reactions", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT message_id, user_id, read_at IS NOT NULL FROM message_receipts
		WHERE message_id = ANY($1)
		ORDER BY delivered_at, user_id`, ids)
	if err != nil {
		return storeErr("load receipts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, userID uuid.UUID
		var read bool
		if err := rows.Scan(&messageID, &userID, &read); err != nil {
			return storeErr("scan receipt", err)
		}
		msg := byID[messageID]
		msg.DeliveredTo = append(msg.DeliveredTo, userID)
		if read {
			msg.ReadBy = append(msg.ReadBy, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return storeErr("iterate receipts", err)
	}
	return nil
}
