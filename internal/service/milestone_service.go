package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/cache"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/metrics"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/repository"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/validation"
)

const overdueSweepBatch = 200

// ProjectDirectory answers project membership questions from conversation participants.
type ProjectDirectory interface {
	RequireProjectMember(projectID uint, actor auth.Identity) error
	ProjectConversationID(projectID uint) uint
}

type MilestoneService struct {
	milestoneRepo   repository.MilestoneRepositoryInterface
	outboxRepo      repository.OutboxRepositoryInterface
	projects        ProjectDirectory
	cache           *cache.MessageCache
	broadcaster     Broadcaster
	defaultCurrency string
	now             func() time.Time
}

func NewMilestoneService(
	milestoneRepo repository.MilestoneRepositoryInterface,
	outboxRepo repository.OutboxRepositoryInterface,
	projects ProjectDirectory,
	messageCache *cache.MessageCache,
	defaultCurrency string,
) *MilestoneService {
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}
	return &MilestoneService{
		milestoneRepo:   milestoneRepo,
		outboxRepo:      outboxRepo,
		projects:        projects,
		cache:           messageCache,
		broadcaster:     noopBroadcaster{},
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *MilestoneService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

type CreateMilestoneInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Amount      int64      `json:"amount" validate:"gt=0"`
	Currency    string     `json:"currency" validate:"omitempty,currency"`
	DueDate     *time.Time `json:"due_date"`
	Workflow    string     `json:"workflow" validate:"omitempty,oneof=standard approval"`
}

func (s *MilestoneService) Create(projectID uint, input CreateMilestoneInput, actor auth.Identity) (*models.Milestone, error) {
	if !actor.Role.Elevated() {
		return nil, apperr.Forbidden("only admins and managers can create milestones")
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Currency = validation.NormalizeCurrency(input.Currency)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if err := s.projects.RequireProjectMember(projectID, actor); err != nil {
		return nil, err
	}

	workflow, _ := models.ParseWorkflow(input.Workflow)
	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	milestone := &models.Milestone{
		ProjectID:   projectID,
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		Amount:      input.Amount,
		Currency:    currency,
		DueDate:     input.DueDate,
		CreatedBy:   actor.UserID,
		Workflow:    workflow,
		Status:      models.StatusPending,
	}
	if err := s.milestoneRepo.Create(milestone); err != nil {
		return nil, apperr.Internal("failed to create milestone", err)
	}

	s.Announce(milestone)
	return milestone, nil
}

func (s *MilestoneService) List(projectID uint, actor auth.Identity) ([]models.Milestone, error) {
	if err := s.projects.RequireProjectMember(projectID, actor); err != nil {
		return nil, err
	}
	milestones, err := s.milestoneRepo.ListByProject(projectID)
	if err != nil {
		return nil, apperr.Internal("failed to list milestones", err)
	}
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	return milestones, nil
}

func (s *MilestoneService) Get(milestoneID uint, actor auth.Identity) (*models.Milestone, error) {
	milestone, err := s.milestoneRepo.FindByID(milestoneID)
	if err != nil {
		return nil, notFoundOr("milestone", err)
	}
	if err := s.projects.RequireProjectMember(milestone.ProjectID, actor); err != nil {
		return nil, err
	}
	return milestone, nil
}

// UpdateStatus advances a milestone one edge along its workflow. Legality is checked
// before role authorization; the write is a compare-and-swap on the observed status.
func (s *MilestoneService) UpdateStatus(milestoneID uint, requested models.MilestoneStatus, actor auth.Identity) (*models.Milestone, error) {
	milestone, err := s.Get(milestoneID, actor)
	if err != nil {
		return nil, err
	}

	from := milestone.Status
	if !milestone.Workflow.CanTransition(from, requested) {
		return nil, apperr.InvalidTransition(string(from), string(requested))
	}
	if !models.CanRequestTransition(actor.Role, requested) {
		return nil, apperr.Forbidden(fmt.Sprintf("role %s cannot move a milestone to %s", actor.Role, requested))
	}

	now := s.now()
	won, err := s.milestoneRepo.CompareAndSetStatus(milestone.ID, from, requested, now)
	if err != nil {
		return nil, apperr.Internal("failed to update milestone", err)
	}
	if !won {
		return nil, apperr.Conflict("milestone changed concurrently; refetch and retry")
	}

	milestone.Status = requested
	milestone.UpdatedAt = now
	if requested == models.StatusPaid {
		milestone.PaidAt = &now
		s.enqueue(invoiceEvent(milestone, "", ""))
	}
	metrics.MilestoneTransitions.WithLabelValues(string(from), string(requested)).Inc()
	zap.L().Info("milestone transitioned",
		zap.Uint("milestone_id", milestone.ID),
		zap.String("from", string(from)),
		zap.String("to", string(requested)),
		zap.Uint("user_id", actor.UserID))

	s.Announce(milestone)
	return milestone, nil
}

// Announce broadcasts milestone:updated into the project's conversation room.
func (s *MilestoneService) Announce(milestone *models.Milestone) {
	convID := s.projects.ProjectConversationID(milestone.ProjectID)
	if convID == 0 {
		return
	}
	s.broadcaster.Broadcast(convID, events.New(events.MilestoneUpdated, convID, milestone))
}

// RequestReminder queues a payment reminder, at most once per milestone per day.
// queued is false when today's reminder already went out.
func (s *MilestoneService) RequestReminder(milestoneID uint, actor auth.Identity) (bool, error) {
	if !actor.Role.Elevated() {
		return false, apperr.Forbidden("only admins and managers can send payment reminders")
	}
	milestone, err := s.Get(milestoneID, actor)
	if err != nil {
		return false, err
	}
	if !milestone.AwaitingPayment() {
		return false, apperr.Validation("milestone is not awaiting payment")
	}

	day := s.now().Format("2006-01-02")
	claimed, err := s.cache.ClaimReminder(milestone.ID, day)
	if err != nil {
		zap.L().Warn("reminder claim failed, relying on outbox dedupe", zap.Uint("milestone_id", milestone.ID), zap.Error(err))
		claimed = true
	}
	if !claimed {
		return false, nil
	}

	return s.enqueue(newOutboxEvent(models.EventPaymentReminder,
		fmt.Sprintf("remind:%d:%s", milestone.ID, day),
		map[string]interface{}{
			"milestone_id": milestone.ID,
			"project_id":   milestone.ProjectID,
			"amount":       milestone.Amount,
			"currency":     milestone.Currency,
			"requested_by": actor.UserID,
		})), nil
}

// SweepOverdue queues one milestone.overdue event per milestone and due date.
func (s *MilestoneService) SweepOverdue() (int, error) {
	now := s.now()
	overdue, err := s.milestoneRepo.ListOverdue(now, overdueSweepBatch)
	if err != nil {
		return 0, err
	}

	queued := 0
	for i := range overdue {
		m := &overdue[i]
		if !m.IsOverdue(now) {
			continue
		}
		ok := s.enqueue(newOutboxEvent(models.EventMilestoneOverdue,
			fmt.Sprintf("overdue:%d:%s", m.ID, m.DueDate.UTC().Format("2006-01-02")),
			map[string]interface{}{
				"milestone_id": m.ID,
				"project_id":   m.ProjectID,
				"status":       m.Status,
				"due_date":     m.DueDate,
			}))
		if ok {
			queued++
		}
	}
	return queued, nil
}

func (s *MilestoneService) enqueue(event *models.OutboxEvent) bool {
	if event == nil || s.outboxRepo == nil {
		return false
	}
	inserted, err := s.outboxRepo.Enqueue(event)
	if err != nil {
		zap.L().Error("outbox enqueue failed", zap.String("kind", string(event.Kind)), zap.String("dedupe_key", event.DedupeKey), zap.Error(err))
		return false
	}
	return inserted
}

func newOutboxEvent(kind models.OutboxKind, dedupeKey string, payload map[string]interface{}) *models.OutboxEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("outbox payload encode failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	return &models.OutboxEvent{Kind: kind, DedupeKey: dedupeKey, Payload: string(data)}
}

// invoiceEvent is keyed by milestone alone, so a milestone yields one invoice however it got paid.
func invoiceEvent(m *models.Milestone, orderID, paymentID string) *models.OutboxEvent {
	return newOutboxEvent(models.EventInvoiceReady, fmt.Sprintf("invoice:%d", m.ID), map[string]interface{}{
		"milestone_id": m.ID,
		"project_id":   m.ProjectID,
		"amount":       m.Amount,
		"currency":     m.Currency,
		"order_id":     orderID,
		"payment_id":   paymentID,
	})
}
