package repository

import (
	"time"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

// ConversationRepositoryInterface defines the contract for conversation and participant storage
type ConversationRepositoryInterface interface {
	EnsureForProject(projectID uint, title string, participants []models.Participant) (*models.Conversation, bool, error)
	FindByID(id uint) (*models.Conversation, error)
	FindByProjectID(projectID uint) (*models.Conversation, error)
	ListForUser(userID uint) ([]models.Conversation, error)
	ConversationIDsForUser(userID uint) ([]uint, error)
	UpsertParticipant(participant *models.Participant) error
	DeactivateParticipant(conversationID, userID uint) error
}

// MessageRepositoryInterface defines the contract for the per-conversation message log
type MessageRepositoryInterface interface {
	// Append assigns the next sequence number and persists message. When a message with the
	// same (conversation, sender, client id) exists, message is overwritten with it and duplicate is true.
	Append(message *models.Message) (duplicate bool, err error)
	FindByID(id uint) (*models.Message, error)
	History(conversationID uint, beforeSeq uint64, limit int) ([]models.Message, error)
	Edit(id uint, body string, editedAt time.Time) error
	Tombstone(id uint, removedAt time.Time) error
	MarkSeen(conversationID, userID uint, upToSeq uint64, seenAt time.Time) ([]uint, error)
}

// ReadStateRepositoryInterface defines the contract for per-user read progress
type ReadStateRepositoryInterface interface {
	UpsertMonotonic(conversationID, userID uint, lastReadSeq uint64, readAt time.Time) error
	CountUnread(userID uint) (map[uint]int64, error)
}

// MilestoneRepositoryInterface defines the contract for milestones and their payment orders.
// Every status write is a compare-and-swap on the expected current status.
type MilestoneRepositoryInterface interface {
	Create(milestone *models.Milestone) error
	FindByID(id uint) (*models.Milestone, error)
	ListByProject(projectID uint) ([]models.Milestone, error)
	CompareAndSetStatus(id uint, from, to models.MilestoneStatus, at time.Time) (bool, error)
	AttachOrder(order *models.PaymentOrder, expected models.MilestoneStatus) (bool, error)
	FindOrder(orderID string) (*models.PaymentOrder, error)
	MarkPaid(id uint, from models.MilestoneStatus, orderID, paymentID string, paidAt time.Time, event *models.OutboxEvent) (bool, error)
	ListOverdue(now time.Time, limit int) ([]models.Milestone, error)
}

// OutboxRepositoryInterface defines the contract for the notification outbox
type OutboxRepositoryInterface interface {
	Enqueue(event *models.OutboxEvent) (bool, error)
	GetRetryable(now time.Time, limit int) ([]models.OutboxEvent, error)
	MarkAttempted(id uint, attempts int, nextRetry *time.Time, lastErr string) error
	MarkDispatched(id uint, at time.Time) error
	CleanupDispatched(olderThan time.Duration) error
}
