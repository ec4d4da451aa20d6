package models

import (
	"time"
)

type MessageType string

const (
	TextMessage  MessageType = "text"
	ImageMessage MessageType = "image"
	FileMessage  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case TextMessage, ImageMessage, FileMessage:
		return true
	}
	return false
}

type Message struct {
	ID        uint      `gorm:"primarykey" json:"id" msgpack:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`

	ConversationID uint `gorm:"not null;uniqueIndex:idx_conversation_seq;uniqueIndex:idx_conversation_client" json:"conversation_id" msgpack:"conversation_id"`
	// Seq totally orders messages within a conversation.
	Seq uint64 `gorm:"not null;uniqueIndex:idx_conversation_seq" json:"seq" msgpack:"seq"`

	// Client-side correlation id used for deduplication of retried sends.
	ClientID string `gorm:"type:varchar(36);uniqueIndex:idx_conversation_client;not null" json:"client_id" msgpack:"client_id"`
	SenderID uint   `gorm:"not null;uniqueIndex:idx_conversation_client;index" json:"sender_id" msgpack:"sender_id"`

	Body        string       `gorm:"type:text" json:"body" msgpack:"body"`
	MessageType MessageType  `gorm:"type:varchar(20);default:'text'" json:"message_type" msgpack:"message_type"`
	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"attachments" msgpack:"attachments"`

	IsEdited bool       `gorm:"default:false" json:"is_edited" msgpack:"is_edited"`
	EditedAt *time.Time `json:"edited_at" msgpack:"edited_at"`

	SeenBy []MessageSeen `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"seen_by" msgpack:"seen_by"`

	// Tombstone: deleted messages keep their row so clients can reconcile.
	IsDeleted bool       `gorm:"default:false;index" json:"is_deleted" msgpack:"is_deleted"`
	RemovedAt *time.Time `json:"removed_at" msgpack:"removed_at"`
}

// Attachment is uploaded out-of-band and owned by exactly one message.
type Attachment struct {
	ID           uint   `gorm:"primarykey" json:"id" msgpack:"id"`
	MessageID    uint   `gorm:"not null;index" json:"message_id" msgpack:"message_id"`
	Position     int    `gorm:"not null;default:0" json:"position" msgpack:"position"`
	Name         string `gorm:"size:255;not null" json:"name" msgpack:"name"`
	URL          string `gorm:"not null" json:"url" msgpack:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" msgpack:"thumbnail_url"`
	MimeType     string `gorm:"size:127" json:"mime_type" msgpack:"mime_type"`
	SizeBytes    int64  `json:"size_bytes" msgpack:"size_bytes"`
}

// MessageSeen is one entry of a message's seen-by set. Rows are only ever inserted.
type MessageSeen struct {
	MessageID uint      `gorm:"primaryKey" json:"-" msgpack:"message_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id" msgpack:"user_id"`
	SeenAt    time.Time `gorm:"not null" json:"seen_at" msgpack:"seen_at"`
}

// HasSeen reports whether userID is in the seen-by set.
func (m *Message) HasSeen(userID uint) bool {
	for _, s := range m.SeenBy {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Preview is the text used for the conversation's last-message summary.
func (m *Message) Preview() string {
	if m.Body != "" {
		return m.Body
	}
	if len(m.Attachments) > 0 {
		return "[" + string(m.MessageType) + "] " + m.Attachments[0].Name
	}
	return ""
}

type MessageResponse struct {
	ID             uint          `json:"id"`
	ClientID       string        `json:"client_id"`
	ConversationID uint          `json:"conversation_id"`
	Seq            uint64        `json:"seq"`
	SenderID       uint          `json:"sender_id"`
	Body           string        `json:"body"`
	MessageType    MessageType   `json:"message_type"`
	Attachments    []Attachment  `json:"attachments"`
	IsEdited       bool          `json:"is_edited"`
	SeenBy         []MessageSeen `json:"seen_by"`
	IsDeleted      bool          `json:"is_deleted"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ToResponse hides body and attachments of tombstoned messages.
func (m *Message) ToResponse() MessageResponse {
	resp := MessageResponse{
		ID:             m.ID,
		ClientID:       m.ClientID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Body:           m.Body,
		MessageType:    m.MessageType,
		Attachments:    m.Attachments,
		IsEdited:       m.IsEdited,
		SeenBy:         m.SeenBy,
		IsDeleted:      m.IsDeleted,
		CreatedAt:      m.CreatedAt,
	}
	if resp.Attachments == nil {
		resp.Attachments = []Attachment{}
	}
	if resp.SeenBy == nil {
		resp.SeenBy = []MessageSeen{}
	}
	if m.IsDeleted {
		resp.Body = ""
		resp.Attachments = []Attachment{}
	}
	return resp
}
