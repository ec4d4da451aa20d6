package service

import (
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

// MockConversationRepository is an in-memory ConversationRepositoryInterface.
type MockConversationRepository struct {
	mu    sync.Mutex
	convs map[uint]*models.Conversation
}

func NewMockConversationRepository(convs ...*models.Conversation) *MockConversationRepository {
	m := &MockConversationRepository{convs: make(map[uint]*models.Conversation)}
	for _, c := range convs {
		m.convs[c.ID] = c
	}
	return m
}

func (m *MockConversationRepository) EnsureForProject(projectID uint, title string, participants []models.Participant) (*models.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var conv *models.Conversation
	for _, c := range m.convs {
		if c.ProjectID == projectID {
			conv = c
		}
	}
	created := conv == nil
	if created {
		conv = &models.Conversation{ID: uint(len(m.convs) + 1), ProjectID: projectID, Title: title}
		m.convs[conv.ID] = conv
	}
	for _, p := range participants {
		m.upsertLocked(conv, p)
	}
	return conv, created, nil
}

func (m *MockConversationRepository) upsertLocked(conv *models.Conversation, p models.Participant) {
	for i := range conv.Participants {
		if conv.Participants[i].UserID == p.UserID {
			conv.Participants[i].Role = p.Role
			conv.Participants[i].IsActive = true
			return
		}
	}
	p.ConversationID = conv.ID
	p.IsActive = true
	conv.Participants = append(conv.Participants, p)
}

func (m *MockConversationRepository) FindByID(id uint) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[id]; ok {
		cp := *c
		cp.Participants = append([]models.Participant(nil), c.Participants...)
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockConversationRepository) FindByProjectID(projectID uint) (*models.Conversation, error) {
	m.mu.Lock()
	var id uint
	for _, c := range m.convs {
		if c.ProjectID == projectID {
			id = c.ID
		}
	}
	m.mu.Unlock()
	if id == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return m.FindByID(id)
}

func (m *MockConversationRepository) ListForUser(userID uint) ([]models.Conversation, error) {
	ids, _ := m.ConversationIDsForUser(userID)
	out := make([]models.Conversation, 0, len(ids))
	for _, id := range ids {
		c, _ := m.FindByID(id)
		out = append(out, *c)
	}
	return out, nil
}

func (m *MockConversationRepository) ConversationIDsForUser(userID uint) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint
	for _, c := range m.convs {
		for _, p := range c.Participants {
			if p.UserID == userID && p.IsActive {
				ids = append(ids, c.ID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MockConversationRepository) UpsertParticipant(participant *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[participant.ConversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.upsertLocked(c, *participant)
	return nil
}

func (m *MockConversationRepository) DeactivateParticipant(conversationID, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range c.Participants {
		if c.Participants[i].UserID == userID && c.Participants[i].IsActive {
			c.Participants[i].IsActive = false
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// bumpSeq advances the conversation's sequence counter like the row-locked append does.
func (m *MockConversationRepository) bumpSeq(conversationID uint) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	c.LastSeq++
	return c.LastSeq, nil
}

// MockMessageRepository is an in-memory MessageRepositoryInterface backed by a conversation mock.
type MockMessageRepository struct {
	mu       sync.Mutex
	convs    *MockConversationRepository
	messages map[uint]*models.Message
	nextID   uint
	appends  int
}

func NewMockMessageRepository(convs *MockConversationRepository) *MockMessageRepository {
	return &MockMessageRepository{convs: convs, messages: make(map[uint]*models.Message), nextID: 1}
}

func (m *MockMessageRepository) Append(message *models.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages {
		if existing.ConversationID == message.ConversationID && existing.SenderID == message.SenderID && existing.ClientID == message.ClientID {
			*message = *existing
			return true, nil
		}
	}
	seq, err := m.convs.bumpSeq(message.ConversationID)
	if err != nil {
		return false, err
	}
	message.ID = m.nextID
	m.nextID++
	message.Seq = seq
	message.CreatedAt = time.Now().UTC()
	stored := *message
	m.messages[message.ID] = &stored
	m.appends++
	return false, nil
}

func (m *MockMessageRepository) FindByID(id uint) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[id]; ok {
		cp := *msg
		cp.SeenBy = append([]models.MessageSeen(nil), msg.SeenBy...)
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockMessageRepository) History(conversationID uint, beforeSeq uint64, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && (beforeSeq == 0 || msg.Seq < beforeSeq) {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockMessageRepository) Edit(id uint, body string, editedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.IsDeleted {
		return gorm.ErrRecordNotFound
	}
	msg.Body = body
	msg.IsEdited = true
	msg.EditedAt = &editedAt
	return nil
}

func (m *MockMessageRepository) Tombstone(id uint, removedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.IsDeleted {
		return gorm.ErrRecordNotFound
	}
	msg.IsDeleted = true
	msg.RemovedAt = &removedAt
	return nil
}

func (m *MockMessageRepository) MarkSeen(conversationID, userID uint, upToSeq uint64, seenAt time.Time) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var marked []uint
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID || msg.Seq > upToSeq || msg.SenderID == userID || msg.IsDeleted {
			continue
		}
		if msg.HasSeen(userID) {
			continue
		}
		msg.SeenBy = append(msg.SeenBy, models.MessageSeen{MessageID: msg.ID, UserID: userID, SeenAt: seenAt})
		marked = append(marked, msg.ID)
	}
	sort.Slice(marked, func(i, j int) bool { return marked[i] < marked[j] })
	return marked, nil
}

func (m *MockMessageRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type readKey struct{ conversationID, userID uint }

// MockReadStateRepository counts unread messages straight from the message mock.
type MockReadStateRepository struct {
	mu       sync.Mutex
	states   map[readKey]*models.ReadState
	convs    *MockConversationRepository
	messages *MockMessageRepository
}

func NewMockReadStateRepository(convs *MockConversationRepository, messages *MockMessageRepository) *MockReadStateRepository {
	return &MockReadStateRepository{states: make(map[readKey]*models.ReadState), convs: convs, messages: messages}
}

func (m *MockReadStateRepository) UpsertMonotonic(conversationID, userID uint, lastReadSeq uint64, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := readKey{conversationID, userID}
	st, ok := m.states[k]
	if !ok {
		m.states[k] = &models.ReadState{ConversationID: conversationID, UserID: userID, LastReadSeq: lastReadSeq, LastReadAt: readAt}
		return nil
	}
	if lastReadSeq > st.LastReadSeq {
		st.LastReadSeq = lastReadSeq
	}
	st.LastReadAt = readAt
	return nil
}

func (m *MockReadStateRepository) CountUnread(userID uint) (map[uint]int64, error) {
	ids, _ := m.convs.ConversationIDsForUser(userID)
	out := make(map[uint]int64, len(ids))
	for _, id := range ids {
		var lastRead uint64
		m.mu.Lock()
		if st, ok := m.states[readKey{id, userID}]; ok {
			lastRead = st.LastReadSeq
		}
		m.mu.Unlock()
		m.messages.mu.Lock()
		var n int64
		for _, msg := range m.messages.messages {
			if msg.ConversationID == id && msg.Seq > lastRead && msg.SenderID != userID && !msg.IsDeleted {
				n++
			}
		}
		m.messages.mu.Unlock()
		out[id] = n
	}
	return out, nil
}

// MockOutboxRepository drops events whose dedupe key was already enqueued.
type MockOutboxRepository struct {
	mu     sync.Mutex
	events []models.OutboxEvent
}

func (m *MockOutboxRepository) Enqueue(event *models.OutboxEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.DedupeKey == event.DedupeKey {
			return false, nil
		}
	}
	event.ID = uint(len(m.events) + 1)
	m.events = append(m.events, *event)
	return true, nil
}

func (m *MockOutboxRepository) GetRetryable(now time.Time, limit int) ([]models.OutboxEvent, error) {
	return nil, nil
}

func (m *MockOutboxRepository) MarkAttempted(id uint, attempts int, nextRetry *time.Time, lastErr string) error {
	return nil
}

func (m *MockOutboxRepository) MarkDispatched(id uint, at time.Time) error {
	return nil
}

func (m *MockOutboxRepository) CleanupDispatched(olderThan time.Duration) error {
	return nil
}

func (m *MockOutboxRepository) byKind(kind models.OutboxKind) []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OutboxEvent
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// MockMilestoneRepository applies every status write as a compare-and-swap.
type MockMilestoneRepository struct {
	mu         sync.Mutex
	milestones map[uint]*models.Milestone
	orders     map[string]*models.PaymentOrder
	outbox     *MockOutboxRepository
	nextID     uint
}

func NewMockMilestoneRepository(outbox *MockOutboxRepository) *MockMilestoneRepository {
	return &MockMilestoneRepository{
		milestones: make(map[uint]*models.Milestone),
		orders:     make(map[string]*models.PaymentOrder),
		outbox:     outbox,
		nextID:     1,
	}
}

func (m *MockMilestoneRepository) Create(milestone *models.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if milestone.ID == 0 {
		milestone.ID = m.nextID
	}
	if milestone.ID >= m.nextID {
		m.nextID = milestone.ID + 1
	}
	cp := *milestone
	m.milestones[milestone.ID] = &cp
	return nil
}

func (m *MockMilestoneRepository) FindByID(id uint) (*models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.milestones[id]; ok {
		cp := *ms
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockMilestoneRepository) ListByProject(projectID uint) ([]models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Milestone
	for _, ms := range m.milestones {
		if ms.ProjectID == projectID {
			out = append(out, *ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockMilestoneRepository) CompareAndSetStatus(id uint, from, to models.MilestoneStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok || ms.Status != from {
		return false, nil
	}
	ms.Status = to
	ms.UpdatedAt = at
	if to == models.StatusPaid {
		ms.PaidAt = &at
	}
	return true, nil
}

func (m *MockMilestoneRepository) AttachOrder(order *models.PaymentOrder, expected models.MilestoneStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[order.MilestoneID]
	if !ok || ms.Status != expected {
		return false, nil
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	ms.PaymentOrderID = order.OrderID
	return true, nil
}

func (m *MockMilestoneRepository) FindOrder(orderID string) (*models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockMilestoneRepository) MarkPaid(id uint, from models.MilestoneStatus, orderID, paymentID string, paidAt time.Time, event *models.OutboxEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.milestones[id]
	if !ok || ms.Status != from {
		return false, nil
	}
	ms.Status = models.StatusPaid
	ms.PaidAt = &paidAt
	ms.PaymentOrderID = orderID
	ms.UpdatedAt = paidAt
	if o, ok := m.orders[orderID]; ok {
		o.Status = models.OrderPaid
		o.PaymentID = paymentID
		o.PaidAt = &paidAt
	}
	if event != nil && m.outbox != nil {
		_, _ = m.outbox.Enqueue(event)
	}
	return true, nil
}

func (m *MockMilestoneRepository) ListOverdue(now time.Time, limit int) ([]models.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Milestone
	for _, ms := range m.milestones {
		if ms.DueDate != nil && ms.DueDate.Before(now) && ms.Status != models.StatusPaid {
			out = append(out, *ms)
		}
	}
	return out, nil
}

func (m *MockMilestoneRepository) setStatus(id uint, status models.MilestoneStatus) {
	m.mu.Lock()
	m.milestones[id].Status = status
	m.mu.Unlock()
}
