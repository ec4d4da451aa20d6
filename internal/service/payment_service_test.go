package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/testutil"
)

// completeMilestone walks a fresh standard milestone to completed.
func (f *billingFixture) completeMilestone(t *testing.T) *models.Milestone {
	t.Helper()
	m := f.create(t, "")
	if _, err := f.milestones.UpdateStatus(m.ID, models.StatusInProgress, testutil.Manager); err != nil {
		t.Fatalf("-> in_progress: %v", err)
	}
	if _, err := f.milestones.UpdateStatus(m.ID, models.StatusCompleted, testutil.Developer); err != nil {
		t.Fatalf("-> completed: %v", err)
	}
	return m
}

func TestMilestonePaymentEndToEnd(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	m := f.completeMilestone(t)

	order, err := f.payments.CreateOrder(ctx, m.ID, testutil.Client)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.OrderID != "order_1" || order.Amount != 50000 || order.Currency != "INR" || order.GatewayKey == "" {
		t.Errorf("order = %+v", order)
	}
	if stored, _ := f.milestoneRepo.FindByID(m.ID); stored.Status != models.StatusCompleted {
		t.Errorf("CreateOrder changed status to %s", stored.Status)
	}

	input := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: f.gateway.Sign("order_1", "pay_1")}
	first, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, input)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if first.AlreadyPaid || first.Milestone.Status != models.StatusPaid || first.Milestone.PaidAt == nil {
		t.Fatalf("first verify = %+v", first)
	}

	second, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, input)
	if err != nil {
		t.Fatalf("repeated VerifyPayment: %v", err)
	}
	if !second.AlreadyPaid || !second.Milestone.PaidAt.Equal(*first.Milestone.PaidAt) {
		t.Errorf("second verify = %+v, want same paidAt %v", second, first.Milestone.PaidAt)
	}

	if n := len(f.outbox.byKind(models.EventInvoiceReady)); n != 1 {
		t.Errorf("invoice events = %d, want 1", n)
	}
	updates := f.broadcaster.OfType(events.MilestoneUpdated)
	last := updates[len(updates)-1].Event.Payload.(*models.Milestone)
	if last.Status != models.StatusPaid {
		t.Errorf("last milestone:updated status = %s", last.Status)
	}
}

func TestCreateOrderRequiresAwaitingPayment(t *testing.T) {
	f := newBillingFixture(t)
	m := f.create(t, "")

	if _, err := f.payments.CreateOrder(context.Background(), m.ID, testutil.Client); !apperr.Is(err, apperr.CodeInvalidTransition) {
		t.Errorf("CreateOrder on pending err = %v, want invalid transition", err)
	}
	if len(f.gateway.Calls) != 0 {
		t.Errorf("gateway called for an ineligible milestone")
	}
	if _, err := f.payments.CreateOrder(context.Background(), m.ID, testutil.Outsider); !apperr.Is(err, apperr.CodeForbidden) {
		t.Errorf("outsider CreateOrder err = %v, want forbidden", err)
	}
}

func TestCreateOrderGatewayTimeout(t *testing.T) {
	f := newBillingFixture(t)
	m := f.completeMilestone(t)
	f.payments.timeout = 20 * time.Millisecond
	f.gateway.Delay = 500 * time.Millisecond

	_, err := f.payments.CreateOrder(context.Background(), m.ID, testutil.Client)
	if !apperr.Is(err, apperr.CodeGatewayTimeout) {
		t.Fatalf("err = %v, want gateway timeout", err)
	}
	if appErr, _ := apperr.As(err); !appErr.Retryable() {
		t.Errorf("gateway timeout should be retryable")
	}
	stored, _ := f.milestoneRepo.FindByID(m.ID)
	if stored.Status != models.StatusCompleted || stored.PaymentOrderID != "" {
		t.Errorf("timeout changed milestone: %+v", stored)
	}
}

func TestCreateOrderGatewayRejects(t *testing.T) {
	f := newBillingFixture(t)
	m := f.completeMilestone(t)
	f.gateway.Err = errors.New("BAD_REQUEST_ERROR")

	if _, err := f.payments.CreateOrder(context.Background(), m.ID, testutil.Client); !apperr.Is(err, apperr.CodeGatewayError) {
		t.Errorf("err = %v, want gateway error", err)
	}
}

func TestVerifyPaymentRejects(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	m := f.completeMilestone(t)
	if _, err := f.payments.CreateOrder(ctx, m.ID, testutil.Client); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	tests := []struct {
		name     string
		input    VerifyPaymentInput
		wantCode string
	}{
		{"tampered signature", VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: f.gateway.Sign("order_1", "pay_2")}, apperr.CodePaymentFailed},
		{"unknown order", VerifyPaymentInput{OrderID: "order_9", PaymentID: "pay_1", Signature: f.gateway.Sign("order_9", "pay_1")}, apperr.CodeNotFound},
		{"missing fields", VerifyPaymentInput{OrderID: "order_1"}, apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, tt.input); !apperr.Is(err, tt.wantCode) {
				t.Errorf("err = %v, want %s", err, tt.wantCode)
			}
		})
	}

	stored, _ := f.milestoneRepo.FindByID(m.ID)
	if stored.Status != models.StatusCompleted {
		t.Errorf("failed verification changed status to %s", stored.Status)
	}
	if n := len(f.outbox.byKind(models.EventInvoiceReady)); n != 0 {
		t.Errorf("failed verification queued %d invoices", n)
	}
}

func TestVerifyPaymentWithDifferentOrderAfterPaid(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	m := f.completeMilestone(t)
	_, _ = f.payments.CreateOrder(ctx, m.ID, testutil.Client)
	_, _ = f.payments.CreateOrder(ctx, m.ID, testutil.Client)

	paid := VerifyPaymentInput{OrderID: "order_2", PaymentID: "pay_a", Signature: f.gateway.Sign("order_2", "pay_a")}
	if _, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, paid); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	other := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_b", Signature: f.gateway.Sign("order_1", "pay_b")}
	if _, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, other); !apperr.Is(err, apperr.CodeConflict) {
		t.Errorf("second order err = %v, want conflict", err)
	}
}

func TestVerifyPaymentAfterPaidChecksSignature(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	m := f.completeMilestone(t)
	if _, err := f.payments.CreateOrder(ctx, m.ID, testutil.Client); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	paid := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: f.gateway.Sign("order_1", "pay_1")}
	if _, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, paid); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	tests := []struct {
		name     string
		input    VerifyPaymentInput
		wantCode string
	}{
		{"forged signature", VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_evil", Signature: "deadbeef"}, apperr.CodePaymentFailed},
		{"replayed signature for another payment", VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_2", Signature: paid.Signature}, apperr.CodePaymentFailed},
		{"signed but different payment", VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_2", Signature: f.gateway.Sign("order_1", "pay_2")}, apperr.CodeConflict},
		{"unknown order", VerifyPaymentInput{OrderID: "order_9", PaymentID: "pay_1", Signature: f.gateway.Sign("order_9", "pay_1")}, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, tt.input)
			if !apperr.Is(err, tt.wantCode) {
				t.Errorf("err = %v (result %+v), want %s", err, res, tt.wantCode)
			}
		})
	}

	if n := len(f.outbox.byKind(models.EventInvoiceReady)); n != 1 {
		t.Errorf("invoice events = %d, want 1", n)
	}
}

func TestVerifyPaymentAfterAdminMarkedPaid(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	m := f.completeMilestone(t)
	if _, err := f.payments.CreateOrder(ctx, m.ID, testutil.Client); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := f.milestones.UpdateStatus(m.ID, models.StatusPaid, testutil.Admin); err != nil {
		t.Fatalf("admin -> paid: %v", err)
	}

	input := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: f.gateway.Sign("order_1", "pay_1")}
	res, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, input)
	if !apperr.Is(err, apperr.CodeConflict) {
		t.Errorf("err = %v (result %+v), want conflict", err, res)
	}
}

func TestConcurrentVerificationPaysOnce(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	m := f.completeMilestone(t)
	if _, err := f.payments.CreateOrder(ctx, m.ID, testutil.Client); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	input := VerifyPaymentInput{OrderID: "order_1", PaymentID: "pay_1", Signature: f.gateway.Sign("order_1", "pay_1")}

	const callers = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.payments.VerifyPayment(ctx, m.ID, testutil.Client, input)
			if err != nil {
				t.Errorf("VerifyPayment: %v", err)
				return
			}
			if !res.AlreadyPaid {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("fresh payments = %d, want 1", fresh)
	}
	if n := len(f.outbox.byKind(models.EventInvoiceReady)); n != 1 {
		t.Errorf("invoice events = %d, want 1", n)
	}
}

func TestPaymentsNotConfigured(t *testing.T) {
	conversations := NewConversationService(NewMockConversationRepository(testutil.CreateTestConversation(1, 1)))
	svc := NewPaymentService(NewMockMilestoneRepository(nil), nil, conversations, nil, 0)

	if _, err := svc.CreateOrder(context.Background(), 1, testutil.Client); !apperr.Is(err, apperr.CodeUnavailable) {
		t.Errorf("err = %v, want unavailable", err)
	}
}
