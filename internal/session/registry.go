package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const outboxSize = 256

// Session is one live connection belonging to one user. A user may hold
// several at once (multi-device). Sessions are never persisted.
type Session struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	OpenedAt time.Time

	outbox chan []byte
}

// Outbox is drained by the transport's write pump. The registry closes it
// when the session closes.
func (s *Session) Outbox() <-chan []byte {
	return s.outbox
}

// PresenceEvent is emitted on a user's zero-to-one or one-to-zero session
// transition, never on intermediate opens and closes.
type PresenceEvent struct {
	UserID   uuid.UUID
	Online   bool
	LastSeen time.Time
}

// Registry tracks every open session, keyed by user. It is the source of
// truth for online presence: a user is online iff their session set is
// non-empty. All delivery to sessions goes through the registry so that
// enqueue and close never race.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[uuid.UUID]map[*Session]struct{}
	byID     map[uuid.UUID]*Session
	lastSeen map[uuid.UUID]time.Time

	onPresence func(PresenceEvent)
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:   make(map[uuid.UUID]map[*Session]struct{}),
		byID:     make(map[uuid.UUID]*Session),
		lastSeen: make(map[uuid.UUID]time.Time),
	}
}

// OnPresence installs the presence listener. Set once during wiring, before
// any session opens.
func (r *Registry) OnPresence(fn func(PresenceEvent)) {
	r.onPresence = fn
}

// Open registers a new session for the user. The online presence event fires
// only on the transition from zero to one open session, so a second device
// connecting does not re-announce presence.
func (r *Registry) Open(userID uuid.UUID) *Session {
	s := &Session{
		ID:       uuid.New(),
		UserID:   userID,
		OpenedAt: time.Now(),
		outbox:   make(chan []byte, outboxSize),
	}

	r.mu.Lock()
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[*Session]struct{})
		r.byUser[userID] = set
	}
	wasOffline := len(set) == 0
	set[s] = struct{}{}
	r.byID[s.ID] = s
	open := len(set)
	r.mu.Unlock()

	log.Printf("session: user %s opened session %s (%d open)", userID, s.ID, open)

	if wasOffline && r.onPresence != nil {
		r.onPresence(PresenceEvent{UserID: userID, Online: true})
	}
	return s
}

// Close removes a session. Closing an unknown or already-closed session is a
// no-op. When the user's last session closes, exactly one offline presence
// event fires, carrying the last-seen timestamp captured at that moment.
func (r *Registry) Close(sessionID uuid.UUID) {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, sessionID)

	set := r.byUser[s.UserID]
	delete(set, s)
	close(s.outbox)

	var offline *PresenceEvent
	if len(set) == 0 {
		delete(r.byUser, s.UserID)
		lastSeen := time.Now()
		r.lastSeen[s.UserID] = lastSeen
		offline = &PresenceEvent{UserID: s.UserID, LastSeen: lastSeen}
	}
	r.mu.Unlock()

	log.Printf("session: user %s closed session %s", s.UserID, sessionID)

	if offline != nil && r.onPresence != nil {
		r.onPresence(*offline)
	}
}

// SessionsOf returns a snapshot of the user's open session ids.
func (r *Registry) SessionsOf(userID uuid.UUID) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.byUser[userID]))
	for s := range r.byUser[userID] {
		ids = append(ids, s.ID)
	}
	return ids
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// LastSeen returns when the user's final session closed. The second return
// is false for users that are online or were never seen.
func (r *Registry) LastSeen(userID uuid.UUID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.byUser[userID]) > 0 {
		return time.Time{}, false
	}
	t, ok := r.lastSeen[userID]
	return t, ok
}

// DeliverToUser enqueues the payload on every open session of the user,
// once per session, oldest enqueue first. A session whose outbox is full
// drops the payload; the transport's own disconnect signal prunes dead
// sessions, not the delivery path.
func (r *Registry) DeliverToUser(userID uuid.UUID, payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for s := range r.byUser[userID] {
		select {
		case s.outbox <- payload:
		default:
			log.Printf("session: outbox full, dropping event for session %s", s.ID)
		}
	}
}

// Broadcast enqueues the payload on every open session, optionally skipping
// one user. Used only for presence, which is not conversation-scoped.
func (r *Registry) Broadcast(payload []byte, excludeUserID *uuid.UUID) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for userID, set := range r.byUser {
		if excludeUserID != nil && userID == *excludeUserID {
			continue
		}
		for s := range set {
			select {
			case s.outbox <- payload:
			default:
				log.Printf("session: outbox full, dropping event for session %s", s.ID)
			}
		}
	}
}
