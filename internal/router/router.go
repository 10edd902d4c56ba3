package router

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/membership"
	"github.com/vedran77/relay/internal/session"
)

// Router fans a conversation-scoped event out to every live session of every
// member, once per session. It is the only component that broadcasts; the
// store stays passive.
//
// Publish never blocks on a slow or dead session and never reports delivery
// failure to the caller: durable state is already committed by the time an
// event reaches the router, and clients recover missed live updates by
// re-fetching on reconnect.
type Router struct {
	members  *membership.Index
	registry *session.Registry
}

func New(members *membership.Index, registry *session.Registry) *Router {
	return &Router{members: members, registry: registry}
}

// Publish resolves the conversation's members and enqueues the event on each
// member's sessions. excludeUserID suppresses the echo to the acting user,
// who already holds the authoritative response from their own write.
//
// Events published by one caller goroutine reach any given session in
// publish order; no ordering holds across different writers racing on the
// same conversation.
func (r *Router) Publish(ctx context.Context, conversationID uuid.UUID, evt *Event, excludeUserID *uuid.UUID) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("router: marshal error: %v", err)
		return
	}

	members, err := r.members.MembersOf(ctx, conversationID)
	if err != nil {
		// A conversation that vanished between commit and fan-out drops its
		// event instead of failing the whole publish.
		log.Printf("router: dropping %s for %s: %v", evt.Type, conversationID, err)
		return
	}

	for _, userID := range members {
		if excludeUserID != nil && userID == *excludeUserID {
			continue
		}
		r.registry.DeliverToUser(userID, data)
	}
}

// PublishPresence broadcasts an online/offline transition to every connected
// session except the affected user's own. Only the session registry's
// transition hook calls this; direct callers cannot spoof presence.
func (r *Router) PublishPresence(ev session.PresenceEvent) {
	payload := PresencePayload{UserID: ev.UserID, Status: "offline"}
	if ev.Online {
		payload.Status = "online"
	} else {
		lastSeen := ev.LastSeen
		payload.LastSeen = &lastSeen
	}

	evt, err := NewEvent(EventTypePresence, nil, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	r.registry.Broadcast(data, &ev.UserID)
}
