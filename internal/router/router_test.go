package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/membership"
	"github.com/vedran77/relay/internal/session"
)

type fakeMembers struct {
	members map[uuid.UUID][]uuid.UUID
}

func (f *fakeMembers) MembersOf(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	members, ok := f.members[conversationID]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	return members, nil
}

func drain(t *testing.T, s *session.Session) []Event {
	t.Helper()
	var events []Event
	for {
		select {
		case payload, ok := <-s.Outbox():
			if !ok {
				return events
			}
			var evt Event
			require.NoError(t, json.Unmarshal(payload, &evt))
			events = append(events, evt)
		default:
			return events
		}
	}
}

func TestPublishFansOutToMemberSessionsOnly(t *testing.T) {
	conv := uuid.New()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	registry := session.NewRegistry()
	rt := New(membership.NewIndex(&fakeMembers{members: map[uuid.UUID][]uuid.UUID{
		conv: {alice, bob},
	}}), registry)

	sa := registry.Open(alice)
	sb1 := registry.Open(bob)
	sb2 := registry.Open(bob)
	sc := registry.Open(carol) // not a member

	evt, err := NewEvent(EventTypeMessageNew, &conv, map[string]string{"x": "y"})
	require.NoError(t, err)
	rt.Publish(context.Background(), conv, evt, nil)

	assert.Len(t, drain(t, sa), 1)
	assert.Len(t, drain(t, sb1), 1)
	assert.Len(t, drain(t, sb2), 1)
	assert.Empty(t, drain(t, sc))
}

func TestPublishExcludesActingUser(t *testing.T) {
	conv := uuid.New()
	sender, other := uuid.New(), uuid.New()

	registry := session.NewRegistry()
	rt := New(membership.NewIndex(&fakeMembers{members: map[uuid.UUID][]uuid.UUID{
		conv: {sender, other},
	}}), registry)

	// Both of the sender's devices must be skipped, not just one.
	senderS1 := registry.Open(sender)
	senderS2 := registry.Open(sender)
	otherS := registry.Open(other)

	evt, err := NewEvent(EventTypeMessageNew, &conv, map[string]string{"x": "y"})
	require.NoError(t, err)
	rt.Publish(context.Background(), conv, evt, &sender)

	assert.Empty(t, drain(t, senderS1))
	assert.Empty(t, drain(t, senderS2))
	assert.Len(t, drain(t, otherS), 1)
}

func TestPublishPreservesSingleWriterOrder(t *testing.T) {
	conv := uuid.New()
	user := uuid.New()

	registry := session.NewRegistry()
	rt := New(membership.NewIndex(&fakeMembers{members: map[uuid.UUID][]uuid.UUID{
		conv: {user},
	}}), registry)
	s := registry.Open(user)

	const n = 20
	for i := 0; i < n; i++ {
		evt, err := NewEvent(EventTypeMessageNew, &conv, map[string]int{"seq": i})
		require.NoError(t, err)
		rt.Publish(context.Background(), conv, evt, nil)
	}

	events := drain(t, s)
	require.Len(t, events, n)
	for i, evt := range events {
		var payload map[string]int
		require.NoError(t, json.Unmarshal(evt.Payload, &payload))
		assert.Equal(t, i, payload["seq"], fmt.Sprintf("event %d out of order", i))
	}
}

func TestPublishDropsEventForUnknownConversation(t *testing.T) {
	registry := session.NewRegistry()
	rt := New(membership.NewIndex(&fakeMembers{members: map[uuid.UUID][]uuid.UUID{}}), registry)

	user := uuid.New()
	s := registry.Open(user)

	conv := uuid.New()
	evt, err := NewEvent(EventTypeMessageDeleted, &conv, MessageDeletedPayload{ID: uuid.New()})
	require.NoError(t, err)

	// Must not panic or error; the event is silently dropped.
	rt.Publish(context.Background(), conv, evt, nil)
	assert.Empty(t, drain(t, s))
}

func TestPublishPresenceSkipsAffectedUser(t *testing.T) {
	registry := session.NewRegistry()
	rt := New(membership.NewIndex(&fakeMembers{}), registry)
	registry.OnPresence(rt.PublishPresence)

	alice, bob := uuid.New(), uuid.New()
	sb := registry.Open(bob)
	drain(t, sb)

	sa1 := registry.Open(alice)
	sa2 := registry.Open(alice)

	bobEvents := drain(t, sb)
	require.Len(t, bobEvents, 1, "second device must not re-announce")
	assert.Equal(t, EventTypePresence, bobEvents[0].Type)
	var online PresencePayload
	require.NoError(t, json.Unmarshal(bobEvents[0].Payload, &online))
	assert.Equal(t, "online", online.Status)
	assert.Equal(t, alice, online.UserID)

	registry.Close(sa1.ID)
	assert.Empty(t, drain(t, sb), "closing one of two devices is silent")

	registry.Close(sa2.ID)
	bobEvents = drain(t, sb)
	require.Len(t, bobEvents, 1)
	var offline PresencePayload
	require.NoError(t, json.Unmarshal(bobEvents[0].Payload, &offline))
	assert.Equal(t, "offline", offline.Status)
	require.NotNil(t, offline.LastSeen)

	// Alice's own surviving outboxes never saw her presence events.
	assert.Empty(t, drain(t, sa2))
}
