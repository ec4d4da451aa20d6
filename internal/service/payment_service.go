package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/metrics"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/payment"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/repository"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/validation"
)

const DefaultGatewayTimeout = 10 * time.Second

// MilestoneAnnouncer publishes a milestone's new state to its project room.
type MilestoneAnnouncer interface {
	Announce(milestone *models.Milestone)
}

// PaymentService drives the two-phase payment flow: open a gateway order, then
// verify the gateway's signed confirmation and finalize the milestone as paid.
type PaymentService struct {
	milestoneRepo repository.MilestoneRepositoryInterface
	gateway       payment.Gateway
	projects      ProjectDirectory
	announcer     MilestoneAnnouncer
	timeout       time.Duration
	locks         *keyedMutex
	now           func() time.Time
}

func NewPaymentService(
	milestoneRepo repository.MilestoneRepositoryInterface,
	gateway payment.Gateway,
	projects ProjectDirectory,
	announcer MilestoneAnnouncer,
	timeout time.Duration,
) *PaymentService {
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	return &PaymentService{
		milestoneRepo: milestoneRepo,
		gateway:       gateway,
		projects:      projects,
		announcer:     announcer,
		timeout:       timeout,
		locks:         newKeyedMutex(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type OrderResult struct {
	MilestoneID uint   `json:"milestone_id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	GatewayKey  string `json:"gateway_key"`
}

// CreateOrder opens a gateway order for a milestone awaiting payment. The milestone
// status does not change. A slow gateway surfaces as a retryable GatewayTimeout.
func (s *PaymentService) CreateOrder(ctx context.Context, milestoneID uint, actor auth.Identity) (*OrderResult, error) {
	if s.gateway == nil {
		return nil, apperr.Unavailable("payments are not configured")
	}

	milestone, err := s.milestoneRepo.FindByID(milestoneID)
	if err != nil {
		return nil, notFoundOr("milestone", err)
	}
	if err := s.projects.RequireProjectMember(milestone.ProjectID, actor); err != nil {
		return nil, err
	}
	if !milestone.AwaitingPayment() {
		return nil, apperr.InvalidTransition(string(milestone.Status), string(models.StatusPaid))
	}

	receipt := fmt.Sprintf("ms_%d_%s", milestone.ID, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.gateway.CreateOrder(callCtx, payment.OrderRequest{
		Amount:   milestone.Amount,
		Currency: milestone.Currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"milestone_id": fmt.Sprint(milestone.ID),
			"project_id":   fmt.Sprint(milestone.ProjectID),
		},
	})
	if err != nil {
		if errors.Is(err, payment.ErrGatewayTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			zap.L().Warn("payment gateway timed out", zap.Uint("milestone_id", milestone.ID), zap.Error(err))
			return nil, apperr.GatewayTimeout("payment gateway did not respond; try again", err)
		}
		zap.L().Error("payment gateway rejected order", zap.Uint("milestone_id", milestone.ID), zap.Error(err))
		return nil, apperr.BadGateway("payment gateway rejected the order", err)
	}

	attached, err := s.milestoneRepo.AttachOrder(&models.PaymentOrder{
		MilestoneID: milestone.ID,
		OrderID:     order.ID,
		Receipt:     receipt,
		Amount:      milestone.Amount,
		Currency:    milestone.Currency,
		Status:      models.OrderCreated,
	}, milestone.Status)
	if err != nil {
		return nil, apperr.Internal("failed to record payment order", err)
	}
	if !attached {
		return nil, apperr.Conflict("milestone changed while the order was being created; refetch and retry")
	}

	zap.L().Info("payment order created",
		zap.Uint("milestone_id", milestone.ID),
		zap.String("order_id", order.ID),
		zap.Uint("user_id", actor.UserID))

	return &OrderResult{
		MilestoneID: milestone.ID,
		OrderID:     order.ID,
		Amount:      milestone.Amount,
		Currency:    milestone.Currency,
		Receipt:     receipt,
		GatewayKey:  s.gateway.KeyID(),
	}, nil
}

type VerifyPaymentInput struct {
	OrderID   string `json:"order_id" validate:"required,max=64"`
	PaymentID string `json:"payment_id" validate:"required,max=64"`
	Signature string `json:"signature" validate:"required"`
}

type VerifyResult struct {
	Milestone   *models.Milestone `json:"milestone"`
	AlreadyPaid bool              `json:"already_paid"`
}

// VerifyPayment checks the gateway signature and marks the milestone paid. One caller
// per milestone runs at a time; repeating a successful verification returns the same
// outcome without side effects.
func (s *PaymentService) VerifyPayment(ctx context.Context, milestoneID uint, actor auth.Identity, input VerifyPaymentInput) (*VerifyResult, error) {
	if s.gateway == nil {
		return nil, apperr.Unavailable("payments are not configured")
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(milestoneID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, apperr.GatewayTimeout("request cancelled", err)
	}

	milestone, err := s.milestoneRepo.FindByID(milestoneID)
	if err != nil {
		return nil, notFoundOr("milestone", err)
	}
	if err := s.projects.RequireProjectMember(milestone.ProjectID, actor); err != nil {
		return nil, err
	}

	order, err := s.milestoneRepo.FindOrder(input.OrderID)
	if err != nil {
		return nil, notFoundOr("payment order", err)
	}
	if order.MilestoneID != milestone.ID {
		return nil, apperr.Validation("order does not belong to this milestone")
	}

	if !s.gateway.VerifySignature(input.OrderID, input.PaymentID, input.Signature) {
		metrics.PaymentVerifications.WithLabelValues("invalid_signature").Inc()
		zap.L().Warn("payment signature mismatch",
			zap.Uint("milestone_id", milestone.ID),
			zap.String("order_id", input.OrderID))
		return nil, apperr.PaymentFailed("payment could not be verified; retry the payment")
	}

	if milestone.IsPaid() {
		return s.alreadyPaid(milestone, order, input)
	}

	if !milestone.AwaitingPayment() {
		return nil, apperr.InvalidTransition(string(milestone.Status), string(models.StatusPaid))
	}

	from := milestone.Status
	paidAt := s.now()
	won, err := s.milestoneRepo.MarkPaid(milestone.ID, from, input.OrderID, input.PaymentID, paidAt,
		invoiceEvent(milestone, input.OrderID, input.PaymentID))
	if err != nil {
		return nil, apperr.Internal("failed to finalize payment", err)
	}
	if !won {
		// Another instance finalized first.
		current, err := s.milestoneRepo.FindByID(milestone.ID)
		if err != nil {
			return nil, notFoundOr("milestone", err)
		}
		if current.IsPaid() {
			paidOrder, err := s.milestoneRepo.FindOrder(input.OrderID)
			if err != nil {
				return nil, notFoundOr("payment order", err)
			}
			return s.alreadyPaid(current, paidOrder, input)
		}
		return nil, apperr.Conflict("milestone changed during verification; refetch and retry")
	}

	milestone.Status = models.StatusPaid
	milestone.PaidAt = &paidAt
	milestone.PaymentOrderID = input.OrderID
	milestone.UpdatedAt = paidAt

	metrics.PaymentVerifications.WithLabelValues("paid").Inc()
	metrics.MilestoneTransitions.WithLabelValues(string(from), string(models.StatusPaid)).Inc()
	zap.L().Info("milestone paid",
		zap.Uint("milestone_id", milestone.ID),
		zap.String("order_id", input.OrderID),
		zap.String("payment_id", input.PaymentID))

	if s.announcer != nil {
		s.announcer.Announce(milestone)
	}
	return &VerifyResult{Milestone: milestone}, nil
}

// alreadyPaid answers a verified confirmation for a paid milestone. Only the exact
// payment that settled it is treated as a repeat.
func (s *PaymentService) alreadyPaid(milestone *models.Milestone, order *models.PaymentOrder, input VerifyPaymentInput) (*VerifyResult, error) {
	if milestone.PaymentOrderID != input.OrderID || order.PaymentID != input.PaymentID {
		return nil, apperr.Conflict("milestone was already paid by a different payment")
	}
	metrics.PaymentVerifications.WithLabelValues("duplicate").Inc()
	return &VerifyResult{Milestone: milestone, AlreadyPaid: true}, nil
}
