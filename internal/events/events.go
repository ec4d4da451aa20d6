// Package events defines the room-scoped events pushed to subscribed connections.
package events

import "time"

const (
	MessageNew       = "message:new"
	MessageEdited    = "message:edited"
	MessageDeleted   = "message:deleted"
	MessageAck       = "message:ack"
	TypingStart      = "typing:start"
	TypingStop       = "typing:stop"
	MessagesRead     = "messages:read"
	UserOnline       = "user:online"
	UserOffline      = "user:offline"
	RoomMembers      = "room:members"
	MilestoneUpdated = "milestone:updated"
)

// Event is the envelope written to every connection in a room.
type Event struct {
	Type           string      `json:"type"`
	ConversationID uint        `json:"conversation_id"`
	Payload        interface{} `json:"payload"`
	SentAt         time.Time   `json:"sent_at"`
}

func New(eventType string, conversationID uint, payload interface{}) Event {
	return Event{
		Type:           eventType,
		ConversationID: conversationID,
		Payload:        payload,
		SentAt:         time.Now().UTC(),
	}
}

type MessageDeletedPayload struct {
	MessageID uint `json:"message_id"`
}

type TypingPayload struct {
	UserID uint `json:"user_id"`
}

type ReadPayload struct {
	ReaderID  uint      `json:"reader_id"`
	UpToSeq   uint64    `json:"up_to_seq"`
	ReadAt    time.Time `json:"read_at"`
	MarkedIDs []uint    `json:"message_ids"`
}

type PresencePayload struct {
	UserID uint `json:"user_id"`
}

type RoomMembersPayload struct {
	JoinedUserID  uint   `json:"joined_user_id"`
	OnlineUserIDs []uint `json:"online_user_ids"`
}
