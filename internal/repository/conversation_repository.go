package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// EnsureForProject returns the project's conversation, creating it with the given
// participants on first use. created reports whether this call created it.
func (r *ConversationRepository) EnsureForProject(projectID uint, title string, participants []models.Participant) (*models.Conversation, bool, error) {
	var conv models.Conversation
	created := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}},
			DoNothing: true,
		}).Create(&models.Conversation{ProjectID: projectID, Title: title})
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected == 1

		if err := tx.Where("project_id = ?", projectID).First(&conv).Error; err != nil {
			return err
		}

		for i := range participants {
			participants[i].ConversationID = conv.ID
			participants[i].IsActive = true
		}
		if len(participants) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"role", "is_active"}),
			}).Create(&participants).Error; err != nil {
				return err
			}
		}
		return tx.Preload("Participants").First(&conv, conv.ID).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

func (r *ConversationRepository) FindByID(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.Preload("Participants").First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) FindByProjectID(projectID uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.Preload("Participants").Where("project_id = ?", projectID).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListForUser returns conversations the user actively participates in, most recent activity first.
func (r *ConversationRepository) ListForUser(userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ? AND participants.is_active = true", userID).
		Preload("Participants").
		Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC").
		Find(&convs).Error
	return convs, err
}

func (r *ConversationRepository) ConversationIDsForUser(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Participant{}).
		Where("user_id = ? AND is_active = true", userID).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

// UpsertParticipant adds a participant or reactivates a previously removed one.
func (r *ConversationRepository) UpsertParticipant(participant *models.Participant) error {
	participant.IsActive = true
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "is_active"}),
	}).Create(participant).Error
}

// DeactivateParticipant soft-removes a participant. Rows are never deleted.
func (r *ConversationRepository) DeactivateParticipant(conversationID, userID uint) error {
	result := r.db.Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsNotFound reports whether err is a missing-row error from any repository.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
