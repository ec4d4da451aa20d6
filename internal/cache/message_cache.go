package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

// TTL constants for different cache types
const (
	RecentMessagesTTL = 5 * time.Minute
	UnreadCountTTL    = 1 * time.Minute
	ReminderTTL       = 24 * time.Hour
)

// versionTTL must exceed every entry TTL.
const versionTTL = 24 * time.Hour

// NoVersion is returned when the current version could not be read. Entries
// offered under it are not stored.
const NoVersion int64 = -1

// kvStore is the subset of RedisCache the message cache needs.
type kvStore interface {
	Get(key string) ([]byte, error)
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Counter(key string) (int64, error)
	Incr(ttl time.Duration, keys ...string) error
}

// MessageCache caches the newest history page per conversation and unread badges per user.
// Entries are tagged with the version observed before the reader hit the database and
// invalidation bumps the version, so a page loaded before a write is never served after it.
type MessageCache struct {
	store kvStore
}

// NewMessageCache creates a new message cache
func NewMessageCache(redis *RedisCache) *MessageCache {
	if redis == nil {
		return &MessageCache{}
	}
	return &MessageCache{store: redis}
}

type recentEntry struct {
	Version  int64            `msgpack:"version"`
	Messages []models.Message `msgpack:"messages"`
}

type unreadEntry struct {
	Version int64               `msgpack:"version"`
	Counts  models.UnreadCounts `msgpack:"counts"`
}

func recentKey(conversationID uint) string {
	return fmt.Sprintf("conv:%d:recent", conversationID)
}

func recentVersionKey(conversationID uint) string {
	return fmt.Sprintf("conv:%d:recent:ver", conversationID)
}

func unreadKey(userID uint) string {
	return fmt.Sprintf("unread:%d", userID)
}

func unreadVersionKey(userID uint) string {
	return fmt.Sprintf("unread:%d:ver", userID)
}

func (mc *MessageCache) enabled() bool {
	return mc != nil && mc.store != nil
}

// load returns the current version of versionKey and the raw entry at key, if any.
func (mc *MessageCache) load(key, versionKey string) (int64, []byte) {
	version, err := mc.store.Counter(versionKey)
	if err != nil {
		return NoVersion, nil
	}
	data, err := mc.store.Get(key)
	if err != nil {
		return version, nil
	}
	return version, data
}

// GetRecent retrieves the cached newest page of a conversation. On a miss the returned
// version is the one SetRecent must be given.
func (mc *MessageCache) GetRecent(conversationID uint) ([]models.Message, int64, bool) {
	if !mc.enabled() {
		return nil, NoVersion, false
	}
	version, data := mc.load(recentKey(conversationID), recentVersionKey(conversationID))
	var entry recentEntry
	if data == nil || msgpack.Unmarshal(data, &entry) != nil || entry.Version != version {
		return nil, version, false
	}
	if entry.Messages == nil {
		entry.Messages = []models.Message{}
	}
	return entry.Messages, version, true
}

// SetRecent caches the newest page of a conversation under the version observed before it was loaded
func (mc *MessageCache) SetRecent(conversationID uint, version int64, messages []models.Message) error {
	if !mc.enabled() || version == NoVersion {
		return nil
	}
	data, err := msgpack.Marshal(recentEntry{Version: version, Messages: messages})
	if err != nil {
		return err
	}
	return mc.store.Set(recentKey(conversationID), data, RecentMessagesTTL)
}

// InvalidateRecent retires the cached page after any write to the conversation
func (mc *MessageCache) InvalidateRecent(conversationID uint) error {
	if !mc.enabled() {
		return nil
	}
	return mc.store.Incr(versionTTL, recentVersionKey(conversationID))
}

// GetUnread retrieves a user's cached unread badge. On a miss the returned version is
// the one SetUnread must be given.
func (mc *MessageCache) GetUnread(userID uint) (*models.UnreadCounts, int64, bool) {
	if !mc.enabled() {
		return nil, NoVersion, false
	}
	version, data := mc.load(unreadKey(userID), unreadVersionKey(userID))
	var entry unreadEntry
	if data == nil || msgpack.Unmarshal(data, &entry) != nil || entry.Version != version {
		return nil, version, false
	}
	return &entry.Counts, version, true
}

// SetUnread caches a user's unread badge under the version observed before it was counted
func (mc *MessageCache) SetUnread(userID uint, version int64, counts *models.UnreadCounts) error {
	if !mc.enabled() || version == NoVersion || counts == nil {
		return nil
	}
	data, err := msgpack.Marshal(unreadEntry{Version: version, Counts: *counts})
	if err != nil {
		return err
	}
	return mc.store.Set(unreadKey(userID), data, UnreadCountTTL)
}

// InvalidateUnread retires unread badges for the given users
func (mc *MessageCache) InvalidateUnread(userIDs ...uint) error {
	if !mc.enabled() || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadVersionKey(id)
	}
	return mc.store.Incr(versionTTL, keys...)
}

// ClaimReminder reports whether a payment reminder for the milestone may be sent today.
// Without Redis every claim succeeds and the outbox dedupe key is the only guard.
func (mc *MessageCache) ClaimReminder(milestoneID uint, day string) (bool, error) {
	if !mc.enabled() {
		return true, nil
	}
	return mc.store.SetNX(fmt.Sprintf("remind:%d:%s", milestoneID, day), []byte("1"), ReminderTTL)
}
