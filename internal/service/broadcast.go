package service

import (
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
)

// Broadcaster fans an event out to every connection subscribed to a conversation room.
// Implementations must not block on slow connections.
type Broadcaster interface {
	Broadcast(conversationID uint, event events.Event)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(uint, events.Event) {}

// keyedMutex serializes work per key (conversation or milestone id) inside one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key uint) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// notFoundOr maps a missing row to apperr.NotFound and anything else to an internal error.
func notFoundOr(resource string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, err)
	}
	return apperr.Internal("failed to load "+resource, err)
}
