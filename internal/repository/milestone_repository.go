package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

type MilestoneRepository struct {
	db *gorm.DB
}

func NewMilestoneRepository(db *gorm.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

func (r *MilestoneRepository) Create(milestone *models.Milestone) error {
	return r.db.Create(milestone).Error
}

func (r *MilestoneRepository) FindByID(id uint) (*models.Milestone, error) {
	var milestone models.Milestone
	if err := r.db.First(&milestone, id).Error; err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (r *MilestoneRepository) ListByProject(projectID uint) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.Where("project_id = ?", projectID).
		Order("due_date ASC NULLS LAST, id ASC").
		Find(&milestones).Error
	return milestones, err
}

// CompareAndSetStatus moves the milestone from -> to only if it is still in from.
// Reaching paid also stamps paid_at. Returns false when another writer got there first.
func (r *MilestoneRepository) CompareAndSetStatus(id uint, from, to models.MilestoneStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	if to == models.StatusPaid {
		updates["paid_at"] = at
	}

	result := r.db.Model(&models.Milestone{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// AttachOrder records a gateway order and points the milestone at it, provided the
// milestone is still in expected.
func (r *MilestoneRepository) AttachOrder(order *models.PaymentOrder, expected models.MilestoneStatus) (bool, error) {
	attached := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Milestone{}).
			Where("id = ? AND status = ?", order.MilestoneID, expected).
			Updates(map[string]interface{}{
				"payment_order_id": order.OrderID,
				"updated_at":       time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		attached = true
		return nil
	})
	return attached, err
}

func (r *MilestoneRepository) FindOrder(orderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := r.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaid finalizes a verified payment in one transaction: the milestone CAS, the
// order row and the optional outbox event commit together or not at all.
func (r *MilestoneRepository) MarkPaid(id uint, from models.MilestoneStatus, orderID, paymentID string, paidAt time.Time, event *models.OutboxEvent) (bool, error) {
	won := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Milestone{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]interface{}{
				"status":           models.StatusPaid,
				"paid_at":          paidAt,
				"payment_order_id": orderID,
				"updated_at":       paidAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&models.PaymentOrder{}).
			Where("order_id = ? AND milestone_id = ?", orderID, id).
			Updates(map[string]interface{}{
				"status":     models.OrderPaid,
				"payment_id": paymentID,
				"paid_at":    paidAt,
			}).Error; err != nil {
			return err
		}

		if event != nil {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "dedupe_key"}},
				DoNothing: true,
			}).Create(event).Error; err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	return won, err
}

// ListOverdue returns unpaid milestones whose due date has passed.
func (r *MilestoneRepository) ListOverdue(now time.Time, limit int) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := r.db.Where("due_date IS NOT NULL AND due_date < ? AND status <> ?", now, models.StatusPaid).
		Order("due_date ASC").
		Limit(limit).
		Find(&milestones).Error
	return milestones, err
}
