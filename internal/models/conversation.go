package models

import (
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
	RoleClient    Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleDeveloper, RoleClient:
		return true
	}
	return false
}

// Elevated roles may moderate other participants' messages.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleManager
}

// Conversation is the durable chat channel of one project. It is never deleted.
type Conversation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectID uint   `gorm:"not null;uniqueIndex" json:"project_id"`
	Title     string `gorm:"size:200" json:"title"`

	// Denormalized summary of the newest message, used for list rendering.
	LastMessageText     string     `gorm:"type:text" json:"-"`
	LastMessageSenderID *uint      `json:"-"`
	LastMessageAt       *time.Time `json:"-"`

	// LastSeq is the sequence number of the newest message; it only grows.
	LastSeq uint64 `gorm:"not null;default:0" json:"last_seq"`

	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants"`
}

type Participant struct {
	ConversationID uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint      `gorm:"primaryKey;index" json:"user_id"`
	Role           Role      `gorm:"type:varchar(20);not null" json:"role"`
	IsActive       bool      `gorm:"not null;default:true" json:"is_active"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

type LastMessageSummary struct {
	Text      string    `json:"text"`
	SenderID  uint      `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LastMessage returns nil until the first message is appended.
func (c *Conversation) LastMessage() *LastMessageSummary {
	if c.LastMessageAt == nil || c.LastMessageSenderID == nil {
		return nil
	}
	return &LastMessageSummary{
		Text:      c.LastMessageText,
		SenderID:  *c.LastMessageSenderID,
		CreatedAt: *c.LastMessageAt,
	}
}

// ActiveParticipants returns participants whose membership has not been revoked.
func (c *Conversation) ActiveParticipants() []Participant {
	out := make([]Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out
}

type ConversationResponse struct {
	ID           uint                `json:"id"`
	ProjectID    uint                `json:"project_id"`
	Title        string              `json:"title"`
	Participants []Participant       `json:"participants"`
	LastMessage  *LastMessageSummary `json:"last_message"`
	UnreadCount  int64               `json:"unread_count"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (c *Conversation) ToResponse(unread int64) ConversationResponse {
	return ConversationResponse{
		ID:           c.ID,
		ProjectID:    c.ProjectID,
		Title:        c.Title,
		Participants: c.ActiveParticipants(),
		LastMessage:  c.LastMessage(),
		UnreadCount:  unread,
		UpdatedAt:    c.UpdatedAt,
	}
}
