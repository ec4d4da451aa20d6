package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func withMessageRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Attachments", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Preload("SeenBy")
}

// Append serializes writers on the conversation row so seq, created_at and the
// last-message summary advance together in arrival order.
func (r *MessageRepository) Append(message *models.Message) (bool, error) {
	duplicate := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "last_seq", "last_message_at").
			First(&conv, message.ConversationID).Error; err != nil {
			return err
		}

		var existing models.Message
		err := withMessageRelations(tx).
			Where("conversation_id = ? AND sender_id = ? AND client_id = ?", message.ConversationID, message.SenderID, message.ClientID).
			First(&existing).Error
		if err == nil {
			*message = existing
			duplicate = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		if conv.LastMessageAt != nil && !now.After(*conv.LastMessageAt) {
			now = conv.LastMessageAt.Add(time.Microsecond)
		}
		message.Seq = conv.LastSeq + 1
		message.CreatedAt = now
		message.UpdatedAt = now
		for i := range message.Attachments {
			message.Attachments[i].Position = i
		}

		if err := tx.Create(message).Error; err != nil {
			return err
		}

		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]interface{}{
			"last_seq":               message.Seq,
			"last_message_text":      message.Preview(),
			"last_message_sender_id": message.SenderID,
			"last_message_at":        now,
			"updated_at":             now,
		}).Error
	})
	if err != nil {
		return false, err
	}
	return duplicate, nil
}

func (r *MessageRepository) FindByID(id uint) (*models.Message, error) {
	var message models.Message
	if err := withMessageRelations(r.db).First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// History returns up to limit messages older than beforeSeq (0 means newest), oldest first.
func (r *MessageRepository) History(conversationID uint, beforeSeq uint64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	q := withMessageRelations(r.db).Where("conversation_id = ?", conversationID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}

	var messages []models.Message
	if err := q.Order("seq DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) Edit(id uint, body string, editedAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		result := tx.Model(&msg).Clauses(clause.Returning{}).
			Where("id = ? AND is_deleted = false", id).
			Updates(map[string]interface{}{
				"body":       body,
				"is_edited":  true,
				"edited_at":  editedAt,
				"updated_at": editedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return syncLastMessage(tx, &msg)
	})
}

// Tombstone hides a message's content. The row and its seq are kept.
func (r *MessageRepository) Tombstone(id uint, removedAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		result := tx.Model(&msg).Clauses(clause.Returning{}).
			Where("id = ? AND is_deleted = false", id).
			Updates(map[string]interface{}{
				"is_deleted": true,
				"removed_at": removedAt,
				"updated_at": removedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return syncLastMessage(tx, &msg)
	})
}

// syncLastMessage refreshes the conversation summary when msg is its newest message.
func syncLastMessage(tx *gorm.DB, msg *models.Message) error {
	text := msg.Body
	if msg.IsDeleted {
		text = ""
	}
	return tx.Model(&models.Conversation{}).
		Where("id = ? AND last_seq = ?", msg.ConversationID, msg.Seq).
		Update("last_message_text", text).Error
}

// MarkSeen adds userID to the seen-by set of every live message up to upToSeq that
// the user did not send. Existing entries are left untouched. Returns the ids newly marked.
func (r *MessageRepository) MarkSeen(conversationID, userID uint, upToSeq uint64, seenAt time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.Raw(markSeenSQL, userID, seenAt, conversationID, upToSeq, userID).Scan(&ids).Error
	return ids, err
}

const markSeenSQL = `
INSERT INTO message_seens (message_id, user_id, seen_at)
SELECT m.id, ?, ?
FROM messages m
WHERE m.conversation_id = ?
	AND m.seq <= ?
	AND m.sender_id <> ?
	AND m.is_deleted = false
ON CONFLICT (message_id, user_id) DO NOTHING
RETURNING message_id`
