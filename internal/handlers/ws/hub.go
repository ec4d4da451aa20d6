package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/cache"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/metrics"
)

// ConversationLister resolves the rooms a user belongs to for presence fan-out.
type ConversationLister interface {
	ConversationIDsForUser(userID uint) ([]uint, error)
}

// PresenceMirror shares presence with other instances. Implementations must tolerate
// a nil receiver.
type PresenceMirror interface {
	MarkOnline(userID uint) error
	MarkOffline(userID uint) error
	Refresh(userID uint) error
	IsOnline(userID uint) bool
	OnlineAmong(userIDs []uint) ([]uint, error)
}

// TypingClearer drops typing indicators when a user's last connection closes.
type TypingClearer interface {
	ClearUser(userID uint, conversationIDs []uint)
}

type HubConfig struct {
	SendBuffer   int
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	MaxFrameSize int64
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		PingInterval: 30 * time.Second,
		PongTimeout:  90 * time.Second,
		WriteTimeout: 10 * time.Second,
		MaxFrameSize: 64 * 1024,
	}
}

type relayFrame struct {
	conversationID uint
	frame          []byte
}

// Hub tracks live connections, their room subscriptions and per-user presence.
// A user may hold several connections; presence flips only on the first and last.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[uint]map[*Client]struct{}
	rooms   map[uint]map[*Client]struct{}

	cfg        HubConfig
	directory  ConversationLister
	typing     TypingClearer
	presence   PresenceMirror
	relay      *cache.RoomRelay
	relayQueue chan relayFrame
}

func NewHub(cfg HubConfig, directory ConversationLister) *Hub {
	def := DefaultHubConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = def.MaxFrameSize
	}
	return &Hub{
		clients:   make(map[*Client]struct{}),
		byUser:    make(map[uint]map[*Client]struct{}),
		rooms:     make(map[uint]map[*Client]struct{}),
		cfg:       cfg,
		directory: directory,
		presence:  (*cache.PresenceCache)(nil),
	}
}

func (h *Hub) SetTyping(t TypingClearer) {
	h.typing = t
}

func (h *Hub) SetPresence(p PresenceMirror) {
	if p != nil {
		h.presence = p
	}
}

// SetRelay enables cross-instance fan-out. RunRelay must be started for it to flow.
func (h *Hub) SetRelay(r *cache.RoomRelay) {
	h.relay = r
	h.relayQueue = make(chan relayFrame, 4096)
}

// Register adds a client and reports whether it is the user's first live connection.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	handles, ok := h.byUser[c.UserID]
	if !ok {
		handles = make(map[*Client]struct{})
		h.byUser[c.UserID] = handles
	}
	handles[c] = struct{}{}
	first := len(handles) == 1
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	zap.L().Info("ws client registered",
		zap.Uint("user_id", c.UserID),
		zap.Bool("first", first),
		zap.Int("total", total),
		zap.Bool("gzip", c.supportsGzip))

	if first {
		elsewhere := h.presence.IsOnline(c.UserID)
		if err := h.presence.MarkOnline(c.UserID); err != nil {
			zap.L().Warn("presence mirror failed", zap.Uint("user_id", c.UserID), zap.Error(err))
		}
		if !elsewhere {
			h.announcePresence(c.UserID, events.UserOnline, nil)
		}
	}
	return first
}

// Unregister removes a client, closes its outbound queue and reports whether it was
// the user's last live connection. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, c)
	joined := make([]uint, 0, len(c.rooms))
	for roomID := range c.rooms {
		joined = append(joined, roomID)
		h.removeFromRoomLocked(roomID, c)
	}
	c.rooms = map[uint]bool{}
	handles := h.byUser[c.UserID]
	delete(handles, c)
	last := len(handles) == 0
	if last {
		delete(h.byUser, c.UserID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.closeSend()
	metrics.ConnectionsActive.Dec()
	zap.L().Info("ws client unregistered",
		zap.Uint("user_id", c.UserID),
		zap.Bool("last", last),
		zap.Int("total", total))

	if last {
		if err := h.presence.MarkOffline(c.UserID); err != nil {
			zap.L().Warn("presence mirror failed", zap.Uint("user_id", c.UserID), zap.Error(err))
		}
		var rooms []uint
		if h.presence.IsOnline(c.UserID) {
			// Still connected through another instance.
			rooms = h.conversationsOf(c.UserID, joined)
		} else {
			rooms = h.announcePresence(c.UserID, events.UserOffline, joined)
		}
		if h.typing != nil {
			h.typing.ClearUser(c.UserID, rooms)
		}
	}
	return last
}

func (h *Hub) removeFromRoomLocked(roomID uint, c *Client) {
	members := h.rooms[roomID]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// announcePresence broadcasts a presence event to every conversation of the user
// and returns the conversations it used.
func (h *Hub) announcePresence(userID uint, eventType string, extra []uint) []uint {
	out := h.conversationsOf(userID, extra)
	for _, id := range out {
		h.Broadcast(id, events.New(eventType, id, events.PresencePayload{UserID: userID}))
	}
	return out
}

// conversationsOf merges the user's conversations with extra, sorted.
func (h *Hub) conversationsOf(userID uint, extra []uint) []uint {
	rooms := map[uint]bool{}
	for _, id := range extra {
		rooms[id] = true
	}
	if h.directory != nil {
		ids, err := h.directory.ConversationIDsForUser(userID)
		if err != nil {
			zap.L().Warn("presence: conversation lookup failed", zap.Uint("user_id", userID), zap.Error(err))
		}
		for _, id := range ids {
			rooms[id] = true
		}
	}

	out := make([]uint, 0, len(rooms))
	for id := range rooms {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Join subscribes c to a room and announces which of participantIDs are online on any instance.
func (h *Hub) Join(c *Client, conversationID uint, participantIDs []uint) {
	h.mu.Lock()
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[conversationID] = members
	}
	members[c] = struct{}{}
	c.rooms[conversationID] = true
	h.mu.Unlock()

	online := h.OnlineAmong(append([]uint{c.UserID}, participantIDs...))

	h.Broadcast(conversationID, events.New(events.RoomMembers, conversationID, events.RoomMembersPayload{
		JoinedUserID:  c.UserID,
		OnlineUserIDs: online,
	}))
}

func (h *Hub) Leave(c *Client, conversationID uint) {
	h.mu.Lock()
	if c.rooms[conversationID] {
		delete(c.rooms, conversationID)
		h.removeFromRoomLocked(conversationID, c)
	}
	h.mu.Unlock()
}

// InRoom reports whether c is subscribed to the room.
func (h *Hub) InRoom(c *Client, conversationID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.rooms[conversationID]
}

// EvictUser drops every connection of userID from a room after their membership ends.
func (h *Hub) EvictUser(conversationID, userID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.byUser[userID] {
		if c.rooms[conversationID] {
			delete(c.rooms, conversationID)
			h.removeFromRoomLocked(conversationID, c)
		}
	}
}

// OnlineAmong filters userIDs down to distinct users connected here or on another
// instance, sorted. A failed mirror lookup degrades to local presence.
func (h *Hub) OnlineAmong(userIDs []uint) []uint {
	online := map[uint]bool{}
	h.mu.RLock()
	for _, id := range userIDs {
		if len(h.byUser[id]) > 0 {
			online[id] = true
		}
	}
	h.mu.RUnlock()

	remote, err := h.presence.OnlineAmong(userIDs)
	if err != nil {
		zap.L().Warn("presence lookup failed", zap.Int("users", len(userIDs)), zap.Error(err))
	}
	for _, id := range remote {
		online[id] = true
	}

	out := make([]uint, 0, len(online))
	for id := range online {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsOnline checks if a user has at least one live connection on any instance.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	local := len(h.byUser[userID]) > 0
	h.mu.RUnlock()
	return local || h.presence.IsOnline(userID)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast serializes event once and queues it on every connection in the room.
// It never blocks on a slow connection.
func (h *Hub) Broadcast(conversationID uint, event events.Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("marshal room event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	metrics.RoomBroadcasts.WithLabelValues(event.Type).Inc()
	h.deliverLocal(conversationID, frame)

	if h.relay != nil {
		select {
		case h.relayQueue <- relayFrame{conversationID: conversationID, frame: frame}:
		default:
			metrics.DroppedDeliveries.Inc()
			zap.L().Warn("relay queue full, frame not forwarded", zap.Uint("conversation_id", conversationID))
		}
	}
}

func (h *Hub) deliverLocal(conversationID uint, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if !c.enqueue(frame) {
			metrics.DroppedDeliveries.Inc()
			zap.L().Warn("slow ws client dropped",
				zap.Uint("user_id", c.UserID),
				zap.Uint("conversation_id", conversationID))
			c.kick()
		}
	}
}

// RunRelay forwards local frames to other instances and delivers theirs locally.
func (h *Hub) RunRelay(ctx context.Context) {
	if h.relay == nil {
		return
	}
	go h.relay.Run(ctx, h.deliverLocal)
	for {
		select {
		case <-ctx.Done():
			return
		case rf := <-h.relayQueue:
			if err := h.relay.Publish(ctx, rf.conversationID, rf.frame); err != nil {
				zap.L().Warn("relay publish failed", zap.Uint("conversation_id", rf.conversationID), zap.Error(err))
			}
		}
	}
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.kick()
	}
}
