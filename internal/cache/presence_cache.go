package cache

import (
	"fmt"
	"strconv"
	"time"
)

const (
	PresenceTTL = 90 * time.Second // Match pong timeout
)

// PresenceCache mirrors in-process presence into Redis so other instances can see who
// is online. Each instance owns one field of presence:<user> holding the unix deadline
// of its claim; a user is online while any claim is unexpired. Heartbeats renew the
// claim, so an instance that crashed stops counting after PresenceTTL.
type PresenceCache struct {
	redis    *RedisCache
	instance string
	now      func() time.Time
}

func NewPresenceCache(redis *RedisCache, instanceID string) *PresenceCache {
	return &PresenceCache{redis: redis, instance: instanceID, now: time.Now}
}

func presenceKey(userID uint) string {
	return fmt.Sprintf("presence:%d", userID)
}

func (pc *PresenceCache) enabled() bool {
	return pc != nil && pc.redis != nil
}

func (pc *PresenceCache) claim(userID uint) error {
	deadline := pc.now().Add(PresenceTTL).Unix()
	return pc.redis.HSetExpire(presenceKey(userID), pc.instance, strconv.FormatInt(deadline, 10), PresenceTTL)
}

func (pc *PresenceCache) MarkOnline(userID uint) error {
	if !pc.enabled() {
		return nil
	}
	return pc.claim(userID)
}

// MarkOffline withdraws this instance's claim only.
func (pc *PresenceCache) MarkOffline(userID uint) error {
	if !pc.enabled() {
		return nil
	}
	return pc.redis.HDel(presenceKey(userID), pc.instance)
}

// Refresh renews this instance's claim, recreating it if it was lost
func (pc *PresenceCache) Refresh(userID uint) error {
	if !pc.enabled() {
		return nil
	}
	return pc.claim(userID)
}

// IsOnline reports whether any instance holds an unexpired claim for the user.
func (pc *PresenceCache) IsOnline(userID uint) bool {
	online, err := pc.OnlineAmong([]uint{userID})
	return err == nil && len(online) == 1
}

// OnlineAmong filters userIDs down to those with an unexpired claim on any instance.
func (pc *PresenceCache) OnlineAmong(userIDs []uint) ([]uint, error) {
	if !pc.enabled() || len(userIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}
	claims, err := pc.redis.HValsMany(keys)
	if err != nil {
		return nil, err
	}
	now := pc.now().Unix()
	online := make([]uint, 0, len(userIDs))
	for i, values := range claims {
		if anyLive(values, now) {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}

func anyLive(deadlines []string, now int64) bool {
	for _, v := range deadlines {
		if d, err := strconv.ParseInt(v, 10, 64); err == nil && d > now {
			return true
		}
	}
	return false
}
