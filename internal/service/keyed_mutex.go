package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes work per id (one message, one conversation) while
// leaving different ids fully parallel. Entries are reference-counted so the
// map does not grow with every message ever touched.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*keyedLock)}
}

func (k *keyedMutex) lock(id uuid.UUID) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

func (k *keyedMutex) unlock(id uuid.UUID) {
	k.mu.Lock()
	l := k.locks[id]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
	k.mu.Unlock()

	l.mu.Unlock()
}
