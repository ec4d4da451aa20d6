package repository

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
)

// openTestDB connects to TEST_DATABASE_DSN and migrates it, skipping when unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type pgFixture struct {
	convs    *ConversationRepository
	messages *MessageRepository
	reads    *ReadStateRepository
	conv     *models.Conversation
	// sender, reader and bystander are unique per run so counts never see other runs' rows.
	sender, reader, bystander uint
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	db := openTestDB(t)
	base := uint(time.Now().UnixNano()%1_000_000_000) * 10
	f := &pgFixture{
		convs:     NewConversationRepository(db),
		messages:  NewMessageRepository(db),
		reads:     NewReadStateRepository(db),
		sender:    base + 1,
		reader:    base + 2,
		bystander: base + 3,
	}
	conv, _, err := f.convs.EnsureForProject(base, "integration", []models.Participant{
		{UserID: f.sender, Role: models.RoleDeveloper},
		{UserID: f.reader, Role: models.RoleClient},
		{UserID: f.bystander, Role: models.RoleManager},
	})
	if err != nil {
		t.Fatalf("EnsureForProject: %v", err)
	}
	f.conv = conv
	return f
}

func (f *pgFixture) append(t *testing.T, sender uint, body string) *models.Message {
	t.Helper()
	msg := &models.Message{ConversationID: f.conv.ID, SenderID: sender, ClientID: uuid.NewString(), Body: body, MessageType: models.TextMessage}
	if _, err := f.messages.Append(msg); err != nil {
		t.Fatalf("Append(%q): %v", body, err)
	}
	return msg
}

func TestPostgresReadPath(t *testing.T) {
	f := newPGFixture(t)
	now := time.Now().UTC()

	first := f.append(t, f.sender, "one")
	own := f.append(t, f.reader, "mine")
	gone := f.append(t, f.sender, "removed")
	last := f.append(t, f.sender, "three")
	if err := f.messages.Tombstone(gone.ID, now); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}

	counts, err := f.reads.CountUnread(f.reader)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if got := counts[f.conv.ID]; got != 2 {
		t.Errorf("unread before reading = %d, want 2", got)
	}

	marked, err := f.messages.MarkSeen(f.conv.ID, f.reader, last.Seq, now)
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if len(marked) != 2 || !containsID(marked, first.ID) || !containsID(marked, last.ID) {
		t.Errorf("marked = %v, want [%d %d] without own %d or deleted %d", marked, first.ID, last.ID, own.ID, gone.ID)
	}
	again, err := f.messages.MarkSeen(f.conv.ID, f.reader, last.Seq, now)
	if err != nil || len(again) != 0 {
		t.Errorf("second MarkSeen = %v, %v, want nothing new", again, err)
	}

	if err := f.reads.UpsertMonotonic(f.conv.ID, f.reader, last.Seq, now); err != nil {
		t.Fatalf("UpsertMonotonic: %v", err)
	}
	if err := f.reads.UpsertMonotonic(f.conv.ID, f.reader, first.Seq, now.Add(time.Second)); err != nil {
		t.Fatalf("UpsertMonotonic backwards: %v", err)
	}
	counts, err = f.reads.CountUnread(f.reader)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if got, ok := counts[f.conv.ID]; !ok || got != 0 {
		t.Errorf("unread after reading = %d (present %v), want 0", got, ok)
	}

	bystander, _ := f.reads.CountUnread(f.bystander)
	if got := bystander[f.conv.ID]; got != 3 {
		t.Errorf("bystander unread = %d, want 3", got)
	}
}

func TestPostgresClientIDScopedToConversation(t *testing.T) {
	a := newPGFixture(t)
	b, _, err := a.convs.EnsureForProject(a.conv.ProjectID+1, "integration", []models.Participant{
		{UserID: a.sender, Role: models.RoleDeveloper},
	})
	if err != nil {
		t.Fatalf("EnsureForProject: %v", err)
	}

	clientID := uuid.NewString()
	first := &models.Message{ConversationID: a.conv.ID, SenderID: a.sender, ClientID: clientID, Body: "hi", MessageType: models.TextMessage}
	second := &models.Message{ConversationID: b.ID, SenderID: a.sender, ClientID: clientID, Body: "hi", MessageType: models.TextMessage}
	if _, err := a.messages.Append(first); err != nil {
		t.Fatalf("Append first: %v", err)
	}
	dup, err := a.messages.Append(second)
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if dup || second.ID == first.ID || second.ConversationID != b.ID {
		t.Errorf("second = %+v (duplicate %v), want a new message in conversation %d", second, dup, b.ID)
	}
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
