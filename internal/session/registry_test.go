package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenClosePresenceTransitions(t *testing.T) {
	r := NewRegistry()
	var events []PresenceEvent
	r.OnPresence(func(ev PresenceEvent) { events = append(events, ev) })

	user := uuid.New()

	// First device: online fires.
	s1 := r.Open(user)
	require.Len(t, events, 1)
	assert.True(t, events[0].Online)
	assert.Equal(t, user, events[0].UserID)
	assert.True(t, r.IsOnline(user))

	// Second device: no re-announce.
	s2 := r.Open(user)
	assert.Len(t, events, 1)
	assert.Len(t, r.SessionsOf(user), 2)

	// One device closes: still online, no event.
	r.Close(s1.ID)
	assert.Len(t, events, 1)
	assert.True(t, r.IsOnline(user))

	// Last device closes: exactly one offline event with a last-seen stamp.
	r.Close(s2.ID)
	require.Len(t, events, 2)
	assert.False(t, events[1].Online)
	assert.False(t, events[1].LastSeen.IsZero())
	assert.False(t, r.IsOnline(user))

	lastSeen, ok := r.LastSeen(user)
	require.True(t, ok)
	assert.Equal(t, events[1].LastSeen, lastSeen)
}

func TestCloseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	var offline int
	r.OnPresence(func(ev PresenceEvent) {
		if !ev.Online {
			offline++
		}
	})

	user := uuid.New()
	s := r.Open(user)

	r.Close(s.ID)
	r.Close(s.ID)
	r.Close(uuid.New()) // never-opened handle

	assert.Equal(t, 1, offline)
}

func TestDeliverToUserReachesEverySessionOnce(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()
	s1 := r.Open(user)
	s2 := r.Open(user)

	r.DeliverToUser(user, []byte("a"))
	r.DeliverToUser(user, []byte("b"))

	for _, s := range []*Session{s1, s2} {
		assert.Equal(t, "a", string(<-s.Outbox()))
		assert.Equal(t, "b", string(<-s.Outbox()))
		select {
		case extra := <-s.Outbox():
			t.Fatalf("unexpected extra payload %q", extra)
		default:
		}
	}
}

func TestDeliverDropsWhenOutboxFull(t *testing.T) {
	r := NewRegistry()
	user := uuid.New()
	s := r.Open(user)

	for i := 0; i < outboxSize+10; i++ {
		r.DeliverToUser(user, []byte("x"))
	}
	// The registry must not have blocked; the overflow is simply gone.
	assert.Len(t, s.Outbox(), outboxSize)
}

func TestBroadcastSkipsExcludedUser(t *testing.T) {
	r := NewRegistry()
	alice, bob := uuid.New(), uuid.New()
	sa := r.Open(alice)
	sb := r.Open(bob)

	r.Broadcast([]byte("hello"), &alice)

	assert.Empty(t, sa.Outbox())
	assert.Equal(t, "hello", string(<-sb.Outbox()))
}

func TestConcurrentOpenCloseSingleTransitionPair(t *testing.T) {
	r := NewRegistry()

	var mu sync.Mutex
	online, offline := 0, 0
	r.OnPresence(func(ev PresenceEvent) {
		mu.Lock()
		defer mu.Unlock()
		if ev.Online {
			online++
		} else {
			offline++
		}
	})

	user := uuid.New()
	const devices = 32

	var wg sync.WaitGroup
	sessions := make(chan *Session, devices)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions <- r.Open(user)
		}()
	}
	wg.Wait()
	close(sessions)

	for s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			r.Close(s.ID)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 1, online, "online must fire once for the whole burst")
	assert.Equal(t, 1, offline, "offline must fire once for the whole burst")
	assert.False(t, r.IsOnline(user))
}
