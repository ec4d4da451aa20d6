package testutil

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/payment"
)

// Fixed identities used across package tests.
var (
	Admin     = auth.Identity{UserID: 1, Role: models.RoleAdmin}
	Manager   = auth.Identity{UserID: 2, Role: models.RoleManager}
	Developer = auth.Identity{UserID: 3, Role: models.RoleDeveloper}
	Client    = auth.Identity{UserID: 4, Role: models.RoleClient}
	Outsider  = auth.Identity{UserID: 99, Role: models.RoleDeveloper}
)

// CreateTestConversation returns a project conversation whose active participants are
// the manager, developer and client identities above.
func CreateTestConversation(id, projectID uint) *models.Conversation {
	if id == 0 {
		id = 1
	}
	if projectID == 0 {
		projectID = 1
	}
	now := time.Now()
	return &models.Conversation{
		ID:        id,
		ProjectID: projectID,
		Title:     "Test project",
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []models.Participant{
			{ConversationID: id, UserID: Manager.UserID, Role: models.RoleManager, IsActive: true, JoinedAt: now},
			{ConversationID: id, UserID: Developer.UserID, Role: models.RoleDeveloper, IsActive: true, JoinedAt: now},
			{ConversationID: id, UserID: Client.UserID, Role: models.RoleClient, IsActive: true, JoinedAt: now},
		},
	}
}

// CreateTestMessage creates a text message with default values.
func CreateTestMessage(id, conversationID, senderID uint, body string) *models.Message {
	if id == 0 {
		id = 1
	}
	if senderID == 0 {
		senderID = Manager.UserID
	}
	if body == "" {
		body = "Test message"
	}
	return &models.Message{
		ID:             id,
		ConversationID: conversationID,
		Seq:            uint64(id),
		ClientID:       fmt.Sprintf("00000000-0000-4000-8000-%012d", id),
		SenderID:       senderID,
		Body:           body,
		MessageType:    models.TextMessage,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

// CreateTestMilestone creates a pending standard milestone.
func CreateTestMilestone(id, projectID uint, amount int64) *models.Milestone {
	if id == 0 {
		id = 1
	}
	if amount == 0 {
		amount = 50000
	}
	return &models.Milestone{
		ID:        id,
		ProjectID: projectID,
		Title:     "Design",
		Amount:    amount,
		Currency:  "INR",
		CreatedBy: Manager.UserID,
		Workflow:  models.WorkflowStandard,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// RecordedEvent is one call to RecordingBroadcaster.Broadcast.
type RecordedEvent struct {
	ConversationID uint
	Event          events.Event
}

// RecordingBroadcaster keeps every broadcast in order.
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []RecordedEvent
}

func (b *RecordingBroadcaster) Broadcast(conversationID uint, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, RecordedEvent{ConversationID: conversationID, Event: event})
}

func (b *RecordingBroadcaster) Events() []RecordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedEvent, len(b.events))
	copy(out, b.events)
	return out
}

// OfType returns the recorded events with the given type.
func (b *RecordingBroadcaster) OfType(eventType string) []RecordedEvent {
	var out []RecordedEvent
	for _, e := range b.Events() {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (b *RecordingBroadcaster) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// FakeGateway issues sequential order ids ("order_1", "order_2", ...) and verifies
// signatures with the real HMAC scheme.
type FakeGateway struct {
	mu     sync.Mutex
	Secret string
	Delay  time.Duration
	Err    error
	orders int
	Calls  []payment.OrderRequest
}

func NewFakeGateway(secret string) *FakeGateway {
	return &FakeGateway{Secret: secret}
}

func (g *FakeGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, req)
	delay, failure := g.Delay, g.Err
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, payment.ErrGatewayTimeout
		}
	}
	if failure != nil {
		return nil, failure
	}

	g.mu.Lock()
	g.orders++
	n := g.orders
	g.mu.Unlock()
	return &payment.Order{
		ID:       "order_" + strconv.Itoa(n),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *FakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return payment.VerifySignature(orderID, paymentID, signature, g.Secret)
}

func (g *FakeGateway) KeyID() string {
	return "rzp_test_key"
}

// Sign produces the signature the gateway would hand the client.
func (g *FakeGateway) Sign(orderID, paymentID string) string {
	return payment.Signature(orderID, paymentID, g.Secret)
}
