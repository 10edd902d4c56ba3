package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/router"
)

func TestTypingSignalsSkipTheTypist(t *testing.T) {
	conv, alice, bob := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID][]uuid.UUID{conv: {alice, bob}})
	typing := NewTypingService(f.router)
	ctx := context.Background()

	alicePhone := f.registry.Open(alice)
	aliceLaptop := f.registry.Open(alice)
	bobSess := f.registry.Open(bob)

	typing.Start(ctx, conv, alice)
	typing.Stop(ctx, conv, alice)

	assert.Empty(t, drainEvents(t, alicePhone))
	assert.Empty(t, drainEvents(t, aliceLaptop))

	events := drainEvents(t, bobSess)
	require.Len(t, events, 2)
	assert.Equal(t, router.EventTypeTypingStart, events[0].Type)
	assert.Equal(t, router.EventTypeTypingStop, events[1].Type)

	var payload router.TypingPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, alice, payload.UserID)
}
