package ws

import (
	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/service"
)

func requireConversation(id uint) error {
	if id == 0 {
		return apperr.Validation("conversation_id is required")
	}
	return nil
}

// requireJoined gates ephemeral room commands on an earlier, authorized room:join.
func requireJoined(ctx *CommandContext, conversationID uint) error {
	if err := requireConversation(conversationID); err != nil {
		return err
	}
	if !ctx.Hub.InRoom(ctx.Client, conversationID) {
		return apperr.Forbidden("join the conversation first")
	}
	return nil
}

type RoomJoin struct {
	ConversationID uint `json:"conversation_id"`
}

func (cmd *RoomJoin) GetType() string {
	return "room:join"
}

func (cmd *RoomJoin) Process(ctx *CommandContext, ref string) error {
	if err := requireConversation(cmd.ConversationID); err != nil {
		return err
	}
	conv, _, err := ctx.Services.Rooms.Access(cmd.ConversationID, ctx.Client.UserID)
	if err != nil {
		return err
	}
	active := conv.ActiveParticipants()
	participantIDs := make([]uint, len(active))
	for i, p := range active {
		participantIDs[i] = p.UserID
	}
	ctx.Hub.Join(ctx.Client, cmd.ConversationID, participantIDs)
	return nil
}

type RoomLeave struct {
	ConversationID uint `json:"conversation_id"`
}

func (cmd *RoomLeave) GetType() string {
	return "room:leave"
}

func (cmd *RoomLeave) Process(ctx *CommandContext, ref string) error {
	if err := requireConversation(cmd.ConversationID); err != nil {
		return err
	}
	ctx.Hub.Leave(ctx.Client, cmd.ConversationID)
	ctx.Services.Typing.Stop(cmd.ConversationID, ctx.Client.UserID)
	return nil
}

type TypingStart struct {
	ConversationID uint `json:"conversation_id"`
}

func (cmd *TypingStart) GetType() string {
	return events.TypingStart
}

func (cmd *TypingStart) Process(ctx *CommandContext, ref string) error {
	if err := requireJoined(ctx, cmd.ConversationID); err != nil {
		return err
	}
	ctx.Services.Typing.Start(cmd.ConversationID, ctx.Client.UserID)
	return nil
}

type TypingStop struct {
	ConversationID uint `json:"conversation_id"`
}

func (cmd *TypingStop) GetType() string {
	return events.TypingStop
}

func (cmd *TypingStop) Process(ctx *CommandContext, ref string) error {
	if err := requireJoined(ctx, cmd.ConversationID); err != nil {
		return err
	}
	ctx.Services.Typing.Stop(cmd.ConversationID, ctx.Client.UserID)
	return nil
}

// MessageSend persists a chat message. The sender receives message:ack carrying the
// stored message; the room (sender included) receives message:new once.
type MessageSend struct {
	ConversationID uint                      `json:"conversation_id"`
	ClientID       string                    `json:"client_id"`
	Body           string                    `json:"body"`
	MessageType    models.MessageType        `json:"message_type"`
	Attachments    []service.AttachmentInput `json:"attachments"`
}

func (cmd *MessageSend) GetType() string {
	return "message:send"
}

type AckPayload struct {
	ClientID  string                 `json:"client_id"`
	Duplicate bool                   `json:"duplicate"`
	Message   models.MessageResponse `json:"message"`
}

func (cmd *MessageSend) Process(ctx *CommandContext, ref string) error {
	if err := requireConversation(cmd.ConversationID); err != nil {
		return err
	}
	result, err := ctx.Services.Messages.Send(cmd.ConversationID, ctx.Client.Identity, service.SendMessageInput{
		ClientID:    cmd.ClientID,
		Body:        cmd.Body,
		MessageType: cmd.MessageType,
		Attachments: cmd.Attachments,
	})
	if err != nil {
		return err
	}
	ctx.Hub.SendJSON(ctx.Client, Reply{
		Type:           events.MessageAck,
		Ref:            ref,
		ConversationID: cmd.ConversationID,
		Payload: AckPayload{
			ClientID:  result.Message.ClientID,
			Duplicate: result.Duplicate,
			Message:   result.Message.ToResponse(),
		},
	})
	return nil
}

type MessageEdit struct {
	MessageID uint   `json:"message_id"`
	Body      string `json:"body"`
}

func (cmd *MessageEdit) GetType() string {
	return "message:edit"
}

func (cmd *MessageEdit) Process(ctx *CommandContext, ref string) error {
	if cmd.MessageID == 0 {
		return apperr.Validation("message_id is required")
	}
	_, err := ctx.Services.Messages.Edit(cmd.MessageID, ctx.Client.Identity, cmd.Body)
	return err
}

type MessageDelete struct {
	MessageID uint `json:"message_id"`
}

func (cmd *MessageDelete) GetType() string {
	return "message:delete"
}

func (cmd *MessageDelete) Process(ctx *CommandContext, ref string) error {
	if cmd.MessageID == 0 {
		return apperr.Validation("message_id is required")
	}
	return ctx.Services.Messages.Delete(cmd.MessageID, ctx.Client.Identity)
}

type MessagesRead struct {
	ConversationID uint `json:"conversation_id"`
}

func (cmd *MessagesRead) GetType() string {
	return events.MessagesRead
}

func (cmd *MessagesRead) Process(ctx *CommandContext, ref string) error {
	if err := requireConversation(cmd.ConversationID); err != nil {
		return err
	}
	_, err := ctx.Services.Receipts.MarkRead(cmd.ConversationID, ctx.Client.Identity)
	return err
}
