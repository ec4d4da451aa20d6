package ws

import (
	"encoding/json"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/service"
)

// RoomAccess checks active membership before a room join.
type RoomAccess interface {
	Access(conversationID, userID uint) (*models.Conversation, *models.Participant, error)
}

type MessageCommands interface {
	Send(conversationID uint, sender auth.Identity, input service.SendMessageInput) (*service.SendResult, error)
	Edit(messageID uint, editor auth.Identity, newBody string) (*models.Message, error)
	Delete(messageID uint, requester auth.Identity) error
}

type ReadMarker interface {
	MarkRead(conversationID uint, reader auth.Identity) (*service.ReadResult, error)
}

type TypingTracker interface {
	Start(conversationID, userID uint)
	Stop(conversationID, userID uint)
}

// Services are the collaborators inbound commands call into.
type Services struct {
	Rooms    RoomAccess
	Messages MessageCommands
	Receipts ReadMarker
	Typing   TypingTracker
}

// CommandContext provides all dependencies needed for command processing
type CommandContext struct {
	Client   *Client
	Hub      *Hub
	Services Services
}

// Command is an inbound client frame. ref echoes the client's correlation id, if any.
type Command interface {
	GetType() string
	Process(ctx *CommandContext, ref string) error
}

// SerializedMessage is the wire format wrapper
type SerializedMessage struct {
	Type    string          `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorResponse is sent when command processing fails
type ErrorResponse struct {
	Type      string                 `json:"type"`
	Ref       string                 `json:"ref,omitempty"`
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Reply is a direct response to the connection that sent a command.
type Reply struct {
	Type           string      `json:"type"`
	Ref            string      `json:"ref,omitempty"`
	ConversationID uint        `json:"conversation_id,omitempty"`
	Payload        interface{} `json:"payload"`
}

func CreateCommand(cmdType string, registry map[string]reflect.Type) (Command, error) {
	cmdTypeReflect, ok := registry[cmdType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", cmdType)
	}
	return reflect.New(cmdTypeReflect).Interface().(Command), nil
}

// SendJSON queues v for this client only.
func (h *Hub) SendJSON(c *Client, v interface{}) {
	frame, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("marshal direct frame", zap.Error(err))
		return
	}
	if !c.enqueue(frame) {
		zap.L().Warn("direct frame dropped", zap.Uint("user_id", c.UserID))
		c.kick()
	}
}

func (h *Hub) SendError(c *Client, ref, code, message string, details map[string]interface{}) {
	h.SendJSON(c, ErrorResponse{
		Type:    "error",
		Ref:     ref,
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// SendAppError maps a service error to an error frame. Unknown errors are not leaked.
func (h *Hub) SendAppError(c *Client, ref string, err error) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code == apperr.CodeInternal {
		zap.L().Error("ws command failed", zap.Uint("user_id", c.UserID), zap.String("ref", ref), zap.Error(err))
		h.SendJSON(c, ErrorResponse{Type: "error", Ref: ref, Error: "internal server error", Code: apperr.CodeInternal})
		return
	}
	h.SendJSON(c, ErrorResponse{
		Type:      "error",
		Ref:       ref,
		Error:     appErr.Message,
		Code:      appErr.Code,
		Retryable: appErr.Retryable(),
		Details:   appErr.Details,
	})
}
