package service

import (
	"sync"
	"time"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
)

const DefaultTypingIdleWindow = 3 * time.Second

type typingKey struct {
	conversationID uint
	userID         uint
}

type typingEntry struct {
	timer *time.Timer
}

// TypingService holds ephemeral "is typing" state. Every entry expires on its own
// after the idle window, so a crashed client cannot leave a stuck indicator.
type TypingService struct {
	mu          sync.Mutex
	idle        time.Duration
	entries     map[typingKey]*typingEntry
	broadcaster Broadcaster
}

func NewTypingService(broadcaster Broadcaster, idle time.Duration) *TypingService {
	if idle <= 0 {
		idle = DefaultTypingIdleWindow
	}
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	return &TypingService{
		idle:        idle,
		entries:     make(map[typingKey]*typingEntry),
		broadcaster: broadcaster,
	}
}

func (s *TypingService) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	s.broadcaster = b
	s.mu.Unlock()
}

// Start broadcasts typing:start for a new entry and renews the expiry of an existing one.
func (s *TypingService) Start(conversationID, userID uint) {
	key := typingKey{conversationID: conversationID, userID: userID}
	entry := &typingEntry{}

	s.mu.Lock()
	prev, renewing := s.entries[key]
	if renewing {
		prev.timer.Stop()
	}
	entry.timer = time.AfterFunc(s.idle, func() { s.expire(key, entry) })
	s.entries[key] = entry
	b := s.broadcaster
	s.mu.Unlock()

	if !renewing {
		b.Broadcast(conversationID, events.New(events.TypingStart, conversationID, events.TypingPayload{UserID: userID}))
	}
}

// Stop clears the entry and broadcasts typing:stop. It is a no-op when the user is not typing.
func (s *TypingService) Stop(conversationID, userID uint) {
	key := typingKey{conversationID: conversationID, userID: userID}

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok {
		entry.timer.Stop()
		delete(s.entries, key)
	}
	b := s.broadcaster
	s.mu.Unlock()

	if ok {
		b.Broadcast(conversationID, events.New(events.TypingStop, conversationID, events.TypingPayload{UserID: userID}))
	}
}

// ClearUser stops every typing entry of userID in the given conversations.
func (s *TypingService) ClearUser(userID uint, conversationIDs []uint) {
	for _, id := range conversationIDs {
		s.Stop(id, userID)
	}
}

// IsTyping reports whether a live entry exists.
func (s *TypingService) IsTyping(conversationID, userID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[typingKey{conversationID: conversationID, userID: userID}]
	return ok
}

func (s *TypingService) expire(key typingKey, entry *typingEntry) {
	s.mu.Lock()
	// A renewal replaced the entry after this timer fired.
	if s.entries[key] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	b := s.broadcaster
	s.mu.Unlock()

	b.Broadcast(key.conversationID, events.New(events.TypingStop, key.conversationID, events.TypingPayload{UserID: key.userID}))
}
