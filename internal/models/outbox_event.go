package models

import (
	"time"
)

type OutboxKind string

const (
	EventPaymentReminder  OutboxKind = "payment.reminder_requested"
	EventMilestoneOverdue OutboxKind = "milestone.overdue"
	EventInvoiceReady     OutboxKind = "milestone.invoice_ready"
)

// OutboxEvent is a notification waiting to be handed to the dispatch bus.
type OutboxEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind OutboxKind `gorm:"type:varchar(64);not null;index" json:"kind"`

	// DedupeKey makes enqueueing idempotent: a second event with the same key is dropped.
	DedupeKey string `gorm:"size:191;not null;uniqueIndex" json:"dedupe_key"`

	// Payload to publish (cached JSON)
	Payload string `gorm:"type:text" json:"payload"`

	// Delivery tracking
	Attempts     int        `gorm:"default:0" json:"attempts"`
	LastAttempt  *time.Time `json:"last_attempt"`
	NextRetry    *time.Time `gorm:"index" json:"next_retry"`
	DispatchedAt *time.Time `gorm:"index" json:"dispatched_at"`
	LastError    string     `gorm:"type:text" json:"last_error,omitempty"`
}

// Subject is the bus subject the event is published on.
func (e *OutboxEvent) Subject() string {
	return "agencyflow." + string(e.Kind)
}
