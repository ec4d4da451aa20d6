package models

import (
	"time"
)

type MilestoneStatus string

const (
	StatusPending        MilestoneStatus = "pending"
	StatusInProgress     MilestoneStatus = "in_progress"
	StatusCompleted      MilestoneStatus = "completed"
	StatusSubmitted      MilestoneStatus = "submitted"
	StatusClientApproved MilestoneStatus = "client_approved"
	StatusPaymentPending MilestoneStatus = "payment_pending"
	StatusPaid           MilestoneStatus = "paid"
)

// Milestone is a billable unit of project work.
type Milestone struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectID   uint       `gorm:"not null;index" json:"project_id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Amount      int64      `gorm:"not null" json:"amount"` // minor currency unit
	Currency    string     `gorm:"size:3;not null" json:"currency"`
	DueDate     *time.Time `gorm:"index" json:"due_date"`
	CreatedBy   uint       `gorm:"not null" json:"created_by"`

	Workflow Workflow        `gorm:"type:varchar(20);not null;default:'standard'" json:"workflow"`
	Status   MilestoneStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// PaidAt is set if and only if Status is paid.
	PaidAt         *time.Time `json:"paid_at"`
	PaymentOrderID string     `gorm:"size:64;index" json:"payment_order_id,omitempty"`
}

func (m *Milestone) IsPaid() bool {
	return m.Status == StatusPaid
}

// IsOverdue reports whether the due date passed before now and the milestone is unpaid.
func (m *Milestone) IsOverdue(now time.Time) bool {
	return m.DueDate != nil && !m.IsPaid() && m.DueDate.Before(now)
}

// AwaitingPayment reports whether a payment order may be opened.
func (m *Milestone) AwaitingPayment() bool {
	return m.Status == m.Workflow.PaymentPredecessor()
}

type PaymentOrderStatus string

const (
	OrderCreated PaymentOrderStatus = "created"
	OrderPaid    PaymentOrderStatus = "paid"
)

// PaymentOrder records one gateway order opened for a milestone.
type PaymentOrder struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MilestoneID uint               `gorm:"not null;index" json:"milestone_id"`
	OrderID     string             `gorm:"size:64;not null;uniqueIndex" json:"order_id"`
	Receipt     string             `gorm:"size:64;not null" json:"receipt"`
	Amount      int64              `gorm:"not null" json:"amount"`
	Currency    string             `gorm:"size:3;not null" json:"currency"`
	Status      PaymentOrderStatus `gorm:"type:varchar(20);not null;default:'created'" json:"status"`
	PaymentID   string             `gorm:"size:64" json:"payment_id,omitempty"`
	PaidAt      *time.Time         `json:"paid_at"`
}
