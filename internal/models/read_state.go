package models

import (
	"time"
)

// ReadState tracks per-user read progress in a conversation.
// LastReadSeq is monotonic and is the highest message sequence the user has marked read.
type ReadState struct {
	ConversationID uint      `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint      `gorm:"primaryKey;index" json:"user_id"`
	LastReadSeq    uint64    `gorm:"not null;default:0" json:"last_read_seq"`
	LastReadAt     time.Time `json:"last_read_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UnreadCounts is the badge payload: counts per conversation plus the total.
type UnreadCounts struct {
	Conversations map[uint]int64 `json:"conversations" msgpack:"conversations"`
	Total         int64          `json:"total" msgpack:"total"`
}
