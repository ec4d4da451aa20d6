package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/handlers/ws"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	services ws.Services
	buffer   int
}

func NewWebSocketHandler(hub *ws.Hub, services ws.Services, sendBuffer int) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		services: services,
		buffer:   sendBuffer,
	}
}

// Upgrade admits authenticated websocket upgrades only. It must run after AuthRequired.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return httpx.Error(c, fiber.StatusUpgradeRequired, apperr.CodeValidation, "WebSocket upgrade required")
	}
	if _, err := httpx.CurrentIdentity(c); err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	c.Locals("supportsGzip", c.Query("gzip") == "1" || c.Get("X-Supports-Gzip") == "1")
	return c.Next()
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	identity, ok := c.Locals(httpx.IdentityKey).(auth.Identity)
	if !ok || identity.UserID == 0 {
		zap.L().Warn("websocket opened without identity")
		_ = c.Close()
		return
	}
	supportsGzip, _ := c.Locals("supportsGzip").(bool)

	client := ws.NewClient(identity, c, supportsGzip, h.buffer)
	h.hub.Serve(client, h.services)
}
