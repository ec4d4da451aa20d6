package service

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/testutil"
)

type chatFixture struct {
	convRepo      *MockConversationRepository
	messageRepo   *MockMessageRepository
	readRepo      *MockReadStateRepository
	conversations *ConversationService
	messages      *MessageService
	receipts      *ReadReceiptService
	broadcaster   *testutil.RecordingBroadcaster
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	convRepo := NewMockConversationRepository(testutil.CreateTestConversation(1, 1))
	messageRepo := NewMockMessageRepository(convRepo)
	readRepo := NewMockReadStateRepository(convRepo, messageRepo)
	bc := &testutil.RecordingBroadcaster{}

	conversations := NewConversationService(convRepo)
	messages := NewMessageService(messageRepo, conversations, nil, 100)
	messages.SetBroadcaster(bc)
	receipts := NewReadReceiptService(messageRepo, readRepo, conversations, nil)
	receipts.SetBroadcaster(bc)
	conversations.SetUnreadCounter(receipts)

	return &chatFixture{
		convRepo:      convRepo,
		messageRepo:   messageRepo,
		readRepo:      readRepo,
		conversations: conversations,
		messages:      messages,
		receipts:      receipts,
		broadcaster:   bc,
	}
}

func (f *chatFixture) send(t *testing.T, body string, from auth.Identity) *models.Message {
	t.Helper()
	res, err := f.messages.Send(1, from, SendMessageInput{Body: body})
	if err != nil {
		t.Fatalf("Send(%q): %v", body, err)
	}
	return res.Message
}

func TestSendMessage(t *testing.T) {
	f := newChatFixture(t)

	res, err := f.messages.Send(1, testutil.Manager, SendMessageInput{Body: "  Hello team  "})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Duplicate {
		t.Errorf("first send reported as duplicate")
	}
	msg := res.Message
	if msg.Seq != 1 || msg.Body != "Hello team" || msg.MessageType != models.TextMessage {
		t.Errorf("message = %+v", msg)
	}
	if msg.ClientID == "" {
		t.Errorf("client id should be generated when omitted")
	}

	newEvents := f.broadcaster.OfType(events.MessageNew)
	if len(newEvents) != 1 || newEvents[0].ConversationID != 1 {
		t.Fatalf("message:new events = %+v", newEvents)
	}
	if resp, ok := newEvents[0].Event.Payload.(models.MessageResponse); !ok || resp.ID != msg.ID {
		t.Errorf("payload = %#v", newEvents[0].Event.Payload)
	}
}

func TestSendIsIdempotentOnClientID(t *testing.T) {
	f := newChatFixture(t)
	clientID := uuid.NewString()

	first, err := f.messages.Send(1, testutil.Developer, SendMessageInput{ClientID: clientID, Body: "draft ready"})
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	second, err := f.messages.Send(1, testutil.Developer, SendMessageInput{ClientID: clientID, Body: "draft ready"})
	if err != nil {
		t.Fatalf("retried Send: %v", err)
	}

	if !second.Duplicate {
		t.Errorf("retried send should be flagged duplicate")
	}
	if second.Message.ID != first.Message.ID || second.Message.Seq != first.Message.Seq {
		t.Errorf("retry returned %d/%d, want %d/%d", second.Message.ID, second.Message.Seq, first.Message.ID, first.Message.Seq)
	}
	if n := f.messageRepo.count(); n != 1 {
		t.Errorf("stored messages = %d, want 1", n)
	}
	if n := len(f.broadcaster.OfType(events.MessageNew)); n != 1 {
		t.Errorf("message:new broadcasts = %d, want 1", n)
	}

	// Same client id from another sender is a different message.
	other, err := f.messages.Send(1, testutil.Client, SendMessageInput{ClientID: clientID, Body: "thanks"})
	if err != nil {
		t.Fatalf("Send from other sender: %v", err)
	}
	if other.Duplicate || other.Message.Seq != 2 {
		t.Errorf("other sender result = %+v", other)
	}
}

func TestClientIDIsScopedToConversation(t *testing.T) {
	convRepo := NewMockConversationRepository(testutil.CreateTestConversation(1, 1), testutil.CreateTestConversation(2, 2))
	messages := NewMessageService(NewMockMessageRepository(convRepo), NewConversationService(convRepo), nil, 100)
	messages.SetBroadcaster(&testutil.RecordingBroadcaster{})
	clientID := uuid.NewString()

	first, err := messages.Send(1, testutil.Developer, SendMessageInput{ClientID: clientID, Body: "status update"})
	if err != nil {
		t.Fatalf("Send to conversation 1: %v", err)
	}
	second, err := messages.Send(2, testutil.Developer, SendMessageInput{ClientID: clientID, Body: "status update"})
	if err != nil {
		t.Fatalf("Send to conversation 2: %v", err)
	}

	if second.Duplicate {
		t.Errorf("send to another conversation flagged duplicate")
	}
	if second.Message.ID == first.Message.ID || second.Message.ConversationID != 2 || second.Message.Seq != 1 {
		t.Errorf("second message = %+v, want a new message in conversation 2", second.Message)
	}
}

func TestSendRejects(t *testing.T) {
	tests := []struct {
		name     string
		convID   uint
		sender   auth.Identity
		input    SendMessageInput
		wantCode string
	}{
		{"empty body", 1, testutil.Manager, SendMessageInput{Body: "   "}, apperr.CodeValidation},
		{"too long", 1, testutil.Manager, SendMessageInput{Body: strings.Repeat("x", 101)}, apperr.CodeValidation},
		{"bad client id", 1, testutil.Manager, SendMessageInput{Body: "hi", ClientID: "abc"}, apperr.CodeValidation},
		{"bad type", 1, testutil.Manager, SendMessageInput{Body: "hi", MessageType: "video"}, apperr.CodeValidation},
		{"bad attachment url", 1, testutil.Manager, SendMessageInput{Attachments: []AttachmentInput{{Name: "a", URL: "nope", MimeType: "text/plain"}}}, apperr.CodeValidation},
		{"not a participant", 1, testutil.Outsider, SendMessageInput{Body: "hi"}, apperr.CodeForbidden},
		{"unknown conversation", 42, testutil.Manager, SendMessageInput{Body: "hi"}, apperr.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			_, err := f.messages.Send(tt.convID, tt.sender, tt.input)
			if !apperr.Is(err, tt.wantCode) {
				t.Fatalf("Send err = %v, want %s", err, tt.wantCode)
			}
			if n := f.messageRepo.count(); n != 0 {
				t.Errorf("rejected send stored %d messages", n)
			}
			if n := len(f.broadcaster.Events()); n != 0 {
				t.Errorf("rejected send broadcast %d events", n)
			}
		})
	}
}

func TestSendWithAttachmentsInfersType(t *testing.T) {
	f := newChatFixture(t)

	res, err := f.messages.Send(1, testutil.Developer, SendMessageInput{Attachments: []AttachmentInput{
		{Name: "mock.png", URL: "https://cdn.example.com/media/a.png", MimeType: "image/png", SizeBytes: 10},
	}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Message.MessageType != models.ImageMessage || len(res.Message.Attachments) != 1 {
		t.Errorf("message = %+v", res.Message)
	}

	res, err = f.messages.Send(1, testutil.Developer, SendMessageInput{Body: "brief", Attachments: []AttachmentInput{
		{Name: "mock.png", URL: "https://cdn.example.com/media/a.png", MimeType: "image/png"},
		{Name: "brief.pdf", URL: "https://cdn.example.com/media/b.pdf", MimeType: "application/pdf"},
	}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Message.MessageType != models.FileMessage {
		t.Errorf("mixed attachments type = %s, want file", res.Message.MessageType)
	}
}

func TestConcurrentSendsBroadcastInSeqOrder(t *testing.T) {
	f := newChatFixture(t)
	senders := []auth.Identity{testutil.Manager, testutil.Developer, testutil.Client}

	const perSender = 20
	var wg sync.WaitGroup
	for _, s := range senders {
		wg.Add(1)
		go func(sender auth.Identity) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if _, err := f.messages.Send(1, sender, SendMessageInput{Body: "ping"}); err != nil {
					t.Errorf("Send: %v", err)
				}
			}
		}(s)
	}
	wg.Wait()

	newEvents := f.broadcaster.OfType(events.MessageNew)
	if len(newEvents) != perSender*len(senders) {
		t.Fatalf("broadcasts = %d, want %d", len(newEvents), perSender*len(senders))
	}
	for i, e := range newEvents {
		resp := e.Event.Payload.(models.MessageResponse)
		if resp.Seq != uint64(i+1) {
			t.Fatalf("broadcast %d carried seq %d", i, resp.Seq)
		}
	}
}

func TestEditMessage(t *testing.T) {
	f := newChatFixture(t)
	msg := f.send(t, "frist", testutil.Developer)

	if _, err := f.messages.Edit(msg.ID, testutil.Manager, "first"); !apperr.Is(err, apperr.CodeForbidden) {
		t.Errorf("edit by non-sender err = %v, want forbidden", err)
	}

	updated, err := f.messages.Edit(msg.ID, testutil.Developer, "first")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if updated.Body != "first" || !updated.IsEdited || updated.Seq != msg.Seq {
		t.Errorf("edited = %+v", updated)
	}
	if n := len(f.broadcaster.OfType(events.MessageEdited)); n != 1 {
		t.Errorf("message:edited broadcasts = %d, want 1", n)
	}
}

func TestDeleteMessage(t *testing.T) {
	f := newChatFixture(t)
	fromDev := f.send(t, "oops", testutil.Developer)
	fromClient := f.send(t, "question", testutil.Client)

	if err := f.messages.Delete(fromDev.ID, testutil.Client); !apperr.Is(err, apperr.CodeForbidden) {
		t.Errorf("client deleting other's message err = %v, want forbidden", err)
	}
	if err := f.messages.Delete(fromDev.ID, testutil.Developer); err != nil {
		t.Fatalf("Delete own: %v", err)
	}
	if err := f.messages.Delete(fromDev.ID, testutil.Developer); err != nil {
		t.Errorf("second Delete should succeed, got %v", err)
	}
	if err := f.messages.Delete(fromClient.ID, testutil.Manager); err != nil {
		t.Errorf("manager Delete: %v", err)
	}

	deleted := f.broadcaster.OfType(events.MessageDeleted)
	if len(deleted) != 2 {
		t.Fatalf("message:deleted broadcasts = %d, want 2", len(deleted))
	}
	if p := deleted[0].Event.Payload.(events.MessageDeletedPayload); p.MessageID != fromDev.ID {
		t.Errorf("deleted payload = %+v", p)
	}

	stored, _ := f.messageRepo.FindByID(fromDev.ID)
	if !stored.IsDeleted || stored.Seq != fromDev.Seq {
		t.Errorf("tombstone = %+v", stored)
	}
	if _, err := f.messages.Edit(fromDev.ID, testutil.Developer, "again"); !apperr.Is(err, apperr.CodeValidation) {
		t.Errorf("editing a tombstone err = %v, want validation", err)
	}
}

func TestHistoryPaginates(t *testing.T) {
	f := newChatFixture(t)
	for i := 0; i < 5; i++ {
		f.send(t, "m", testutil.Manager)
	}

	page, err := f.messages.History(1, testutil.Client, 0, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 4 || page[1].Seq != 5 {
		t.Fatalf("newest page = %+v", page)
	}

	older, err := f.messages.History(1, testutil.Client, page[0].Seq, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(older) != 2 || older[0].Seq != 2 || older[1].Seq != 3 {
		t.Errorf("older page = %+v", older)
	}

	if _, err := f.messages.History(1, testutil.Outsider, 0, 10); !apperr.Is(err, apperr.CodeForbidden) {
		t.Errorf("outsider History err = %v, want forbidden", err)
	}
}
