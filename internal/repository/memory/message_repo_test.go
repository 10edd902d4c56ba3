package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/domain"
)

func newMessage(conv, sender uuid.UUID, content string) *domain.Message {
	return &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv,
		SenderID:       sender,
		Content:        &content,
		CreatedAt:      time.Now(),
	}
}

func TestCreateSeedsSenderReceipts(t *testing.T) {
	repo := NewMessageRepo()
	conv, sender := uuid.New(), uuid.New()

	msg := newMessage(conv, sender, "hi")
	require.NoError(t, repo.Create(context.Background(), msg))

	got, err := repo.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []uuid.UUID{sender}, got.DeliveredTo)
	assert.Equal(t, []uuid.UUID{sender}, got.ReadBy)
}

func TestListPagesStayStableUnderInserts(t *testing.T) {
	repo := NewMessageRepo()
	conv, sender := uuid.New(), uuid.New()
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		msg := newMessage(conv, sender, "m")
		require.NoError(t, repo.Create(ctx, msg))
		ids = append(ids, msg.ID)
	}

	page1, err := repo.ListByConversation(ctx, conv, nil, 3)
	require.NoError(t, err)
	require.Len(t, page1, 3)

	// A concurrent insert must not shift the next page's cursor.
	require.NoError(t, repo.Create(ctx, newMessage(conv, sender, "late")))

	cursor := page1[2].ID
	page2, err := repo.ListByConversation(ctx, conv, &cursor, 3)
	require.NoError(t, err)
	require.Len(t, page2, 3)
	assert.Equal(t, ids[3], page2[0].ID)
	assert.Equal(t, ids[4], page2[1].ID)
}

func TestSetReactionReplacesPerUser(t *testing.T) {
	repo := NewMessageRepo()
	conv, sender, reactor := uuid.New(), uuid.New(), uuid.New()
	ctx := context.Background()

	msg := newMessage(conv, sender, "hi")
	require.NoError(t, repo.Create(ctx, msg))

	require.NoError(t, repo.SetReaction(ctx, msg.ID, reactor, "👍"))
	require.NoError(t, repo.SetReaction(ctx, msg.ID, reactor, "❤️"))

	got, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)
	assert.Equal(t, "❤️", got.Reactions[0].Emoji)
	assert.Equal(t, reactor, got.Reactions[0].UserID)

	require.NoError(t, repo.ClearReaction(ctx, msg.ID, reactor))
	got, err = repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reactions)
}

func TestReceiptSetsOnlyGrow(t *testing.T) {
	repo := NewMessageRepo()
	conv, sender, reader := uuid.New(), uuid.New(), uuid.New()
	ctx := context.Background()

	msg := newMessage(conv, sender, "hi")
	require.NoError(t, repo.Create(ctx, msg))

	require.NoError(t, repo.MarkDelivered(ctx, msg.ID, reader))
	require.NoError(t, repo.MarkDelivered(ctx, msg.ID, reader))
	require.NoError(t, repo.MarkRead(ctx, msg.ID, reader))
	require.NoError(t, repo.MarkRead(ctx, msg.ID, reader))

	got, err := repo.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{sender, reader}, got.DeliveredTo)
	assert.ElementsMatch(t, []uuid.UUID{sender, reader}, got.ReadBy)
}

func TestMarkConversationSkipsOwnAndMarked(t *testing.T) {
	repo := NewMessageRepo()
	conv, alice, bob := uuid.New(), uuid.New(), uuid.New()
	ctx := context.Background()

	fromAlice := newMessage(conv, alice, "from alice")
	fromBob := newMessage(conv, bob, "from bob")
	require.NoError(t, repo.Create(ctx, fromAlice))
	require.NoError(t, repo.Create(ctx, fromBob))

	affected, err := repo.MarkConversationDelivered(ctx, conv, bob)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fromAlice.ID}, affected)

	affected, err = repo.MarkConversationDelivered(ctx, conv, bob)
	require.NoError(t, err)
	assert.Empty(t, affected)

	// Read implies delivered and reports the newly-read ids.
	affected, err = repo.MarkConversationRead(ctx, conv, bob)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fromAlice.ID}, affected)
}

func TestDeleteIsHardAndLeavesRepliesDangling(t *testing.T) {
	repo := NewMessageRepo()
	conv, sender := uuid.New(), uuid.New()
	ctx := context.Background()

	target := newMessage(conv, sender, "target")
	require.NoError(t, repo.Create(ctx, target))

	reply := newMessage(conv, sender, "reply")
	reply.ReplyTo = &target.ID
	require.NoError(t, repo.Create(ctx, reply))

	require.NoError(t, repo.Delete(ctx, target.ID))

	got, err := repo.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "read-after-delete resolves to not found")
	assert.ErrorIs(t, repo.Delete(ctx, target.ID), domain.ErrNotFound)

	// The reply survives with a dangling reference.
	gotReply, err := repo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, gotReply)
	assert.Equal(t, target.ID, *gotReply.ReplyTo)
}
