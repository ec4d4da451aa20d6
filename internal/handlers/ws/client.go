package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
)

// Conn is the subset of *websocket.Conn the hub uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

var clientSeq atomic.Uint64

// Client is one live connection. Outbound frames go through a bounded queue drained
// by writePump, so a slow reader never stalls a broadcast.
type Client struct {
	ID       uint64
	UserID   uint
	Identity auth.Identity

	conn         Conn
	supportsGzip bool
	rooms        map[uint]bool // guarded by Hub.mu

	mu     sync.Mutex
	send   chan []byte
	closed bool

	kickOnce sync.Once
	lastPong atomic.Int64
}

func NewClient(identity auth.Identity, conn Conn, supportsGzip bool, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultHubConfig().SendBuffer
	}
	c := &Client{
		ID:           clientSeq.Add(1),
		UserID:       identity.UserID,
		Identity:     identity,
		conn:         conn,
		supportsGzip: supportsGzip,
		rooms:        map[uint]bool{},
		send:         make(chan []byte, buffer),
	}
	c.lastPong.Store(time.Now().UnixNano())
	return c
}

// enqueue reports false when the queue is full or already closed.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// kick closes the socket so the read loop ends and the client unregisters.
func (c *Client) kick() {
	c.kickOnce.Do(func() {
		go func() {
			if err := c.conn.Close(); err != nil {
				zap.L().Debug("ws close", zap.Uint("user_id", c.UserID), zap.Error(err))
			}
		}()
	})
}

// writePump owns all writes to the socket: queued frames and keepalive pings.
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frameType := websocket.TextMessage
			if c.supportsGzip && len(frame) > gzipThreshold {
				if compressed, err := Compress(frame); err == nil && len(compressed) < len(frame) {
					frame = compressed
					frameType = websocket.BinaryMessage
				}
			}
			if err := c.conn.WriteMessage(frameType, frame); err != nil {
				zap.L().Debug("ws write failed", zap.Uint("user_id", c.UserID), zap.Error(err))
				c.kick()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				zap.L().Debug("ws ping failed", zap.Uint("user_id", c.UserID), zap.Error(err))
				c.kick()
				return
			}
		}
	}
}

// Serve runs one connection until it closes: registers it, pumps writes, and
// dispatches inbound commands in arrival order.
func (h *Hub) Serve(c *Client, services Services) {
	h.Register(c)
	go h.writePump(c)
	defer func() {
		h.Unregister(c)
		c.kick()
	}()

	c.conn.SetReadLimit(h.cfg.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		if err := h.presence.Refresh(c.UserID); err != nil {
			zap.L().Debug("presence refresh failed", zap.Uint("user_id", c.UserID), zap.Error(err))
		}
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	ctx := &CommandContext{Client: c, Hub: h, Services: services}
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			zap.L().Debug("ws read ended", zap.Uint("user_id", c.UserID), zap.Error(err))
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		if messageType == websocket.BinaryMessage {
			decompressed, err := Decompress(data, h.cfg.MaxFrameSize)
			if err != nil {
				h.SendError(c, "", "decompression_failed", "failed to decompress frame", nil)
				continue
			}
			data = decompressed
		}

		cmd, ref, err := Deserialize(data)
		if err != nil {
			h.SendError(c, ref, "invalid_message", "invalid message format", map[string]interface{}{"reason": err.Error()})
			continue
		}
		if err := cmd.Process(ctx, ref); err != nil {
			h.SendAppError(c, ref, err)
		}
	}
}
