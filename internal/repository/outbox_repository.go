package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue stores an event for dispatch. A second event with the same dedupe key is
// dropped and reported as not inserted.
func (r *OutboxRepository) Enqueue(event *models.OutboxEvent) (bool, error) {
	if event.NextRetry == nil {
		now := time.Now()
		event.NextRetry = &now
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// GetRetryable gets undispatched events that are due (next_retry <= now)
func (r *OutboxRepository) GetRetryable(now time.Time, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := r.db.Where("dispatched_at IS NULL AND next_retry IS NOT NULL AND next_retry <= ?", now).
		Order("next_retry ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkAttempted updates the attempt count and next retry time. A nil nextRetry parks the event.
func (r *OutboxRepository) MarkAttempted(id uint, attempts int, nextRetry *time.Time, lastErr string) error {
	updates := map[string]interface{}{
		"attempts":     attempts,
		"last_attempt": time.Now(),
		"next_retry":   nextRetry,
		"last_error":   lastErr,
	}
	return r.db.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *OutboxRepository) MarkDispatched(id uint, at time.Time) error {
	return r.db.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"dispatched_at": at,
		"next_retry":    nil,
	}).Error
}

// CleanupDispatched removes dispatched events older than the specified duration.
// Their dedupe keys stop blocking re-enqueue afterwards.
func (r *OutboxRepository) CleanupDispatched(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return r.db.Where("dispatched_at IS NOT NULL AND dispatched_at < ?", cutoff).
		Delete(&models.OutboxEvent{}).Error
}
