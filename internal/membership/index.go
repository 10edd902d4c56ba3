package membership

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Provider is the external conversation-membership service. This core only
// reads member sets; it never mutates membership.
type Provider interface {
	MembersOf(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}

// Index is a read-through cache over the membership Provider, used by the
// event router to resolve fan-out targets. Entries live until the provider
// pushes a membership-changed notification; there is no TTL.
type Index struct {
	provider Provider

	mu    sync.RWMutex
	cache map[uuid.UUID][]uuid.UUID

	// group collapses concurrent cache misses for the same conversation
	// into a single provider call.
	group singleflight.Group
}

func NewIndex(provider Provider) *Index {
	return &Index{
		provider: provider,
		cache:    make(map[uuid.UUID][]uuid.UUID),
	}
}

// MembersOf returns the user ids entitled to receive events for the
// conversation. Callers must not mutate the returned slice.
func (idx *Index) MembersOf(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	idx.mu.RLock()
	members, ok := idx.cache[conversationID]
	idx.mu.RUnlock()
	if ok {
		return members, nil
	}

	v, err, _ := idx.group.Do(conversationID.String(), func() (any, error) {
		members, err := idx.provider.MembersOf(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("resolving members of %s: %w", conversationID, err)
		}
		idx.mu.Lock()
		idx.cache[conversationID] = members
		idx.mu.Unlock()
		return members, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]uuid.UUID), nil
}

// Invalidate drops the cached member set for a conversation. Called from the
// membership service's change notification, not on a timer.
func (idx *Index) Invalidate(conversationID uuid.UUID) {
	idx.mu.Lock()
	delete(idx.cache, conversationID)
	idx.mu.Unlock()
}
