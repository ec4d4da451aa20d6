package repository

import (
	"time"

	"gorm.io/gorm"
)

type ReadStateRepository struct {
	db *gorm.DB
}

func NewReadStateRepository(db *gorm.DB) *ReadStateRepository {
	return &ReadStateRepository{db: db}
}

const upsertReadStateSQL = `
INSERT INTO read_states (conversation_id, user_id, last_read_seq, last_read_at, created_at, updated_at)
VALUES (?, ?, ?, ?, NOW(), NOW())
ON CONFLICT (conversation_id, user_id) DO UPDATE
SET last_read_seq = GREATEST(read_states.last_read_seq, EXCLUDED.last_read_seq),
	last_read_at = EXCLUDED.last_read_at,
	updated_at = NOW()`

// countUnreadSQL yields one row per active conversation of the user, zero included.
const countUnreadSQL = `
SELECT
	p.conversation_id AS conversation_id,
	COUNT(m.id) AS unread_count
FROM participants p
LEFT JOIN read_states rs
	ON rs.conversation_id = p.conversation_id AND rs.user_id = p.user_id
LEFT JOIN messages m
	ON m.conversation_id = p.conversation_id
	AND m.seq > COALESCE(rs.last_read_seq, 0)
	AND m.sender_id <> p.user_id
	AND m.is_deleted = false
WHERE p.user_id = ? AND p.is_active = true
GROUP BY p.conversation_id`

// UpsertMonotonic never moves a user's read position backwards.
func (r *ReadStateRepository) UpsertMonotonic(conversationID, userID uint, lastReadSeq uint64, readAt time.Time) error {
	return r.db.Exec(upsertReadStateSQL, conversationID, userID, lastReadSeq, readAt).Error
}

type unreadRow struct {
	ConversationID uint  `gorm:"column:conversation_id"`
	UnreadCount    int64 `gorm:"column:unread_count"`
}

// CountUnread counts, per active conversation of userID, live messages from other
// senders past the user's read position. Conversations without unread messages are included with 0.
func (r *ReadStateRepository) CountUnread(userID uint) (map[uint]int64, error) {
	var rows []unreadRow
	if err := r.db.Raw(countUnreadSQL, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.ConversationID] = row.UnreadCount
	}
	return counts, nil
}
