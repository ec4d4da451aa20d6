package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/cache"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/events"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/repository"
)

// ReadReceiptService maintains seen-by sets and per-user read positions.
type ReadReceiptService struct {
	messageRepo   repository.MessageRepositoryInterface
	readStateRepo repository.ReadStateRepositoryInterface
	access        ConversationAccess
	cache         *cache.MessageCache
	broadcaster   Broadcaster
}

func NewReadReceiptService(
	messageRepo repository.MessageRepositoryInterface,
	readStateRepo repository.ReadStateRepositoryInterface,
	access ConversationAccess,
	messageCache *cache.MessageCache,
) *ReadReceiptService {
	return &ReadReceiptService{
		messageRepo:   messageRepo,
		readStateRepo: readStateRepo,
		access:        access,
		cache:         messageCache,
		broadcaster:   noopBroadcaster{},
	}
}

func (s *ReadReceiptService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

type ReadResult struct {
	ConversationID uint      `json:"conversation_id"`
	UpToSeq        uint64    `json:"up_to_seq"`
	MarkedIDs      []uint    `json:"message_ids"`
	ReadAt         time.Time `json:"read_at"`
}

// MarkRead marks everything currently in the conversation as read by reader and
// broadcasts messages:read.
func (s *ReadReceiptService) MarkRead(conversationID uint, reader auth.Identity) (*ReadResult, error) {
	conv, _, err := s.access.Access(conversationID, reader.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	upTo := conv.LastSeq

	marked, err := s.messageRepo.MarkSeen(conversationID, reader.UserID, upTo, now)
	if err != nil {
		return nil, apperr.Internal("failed to record receipts", err)
	}
	if err := s.readStateRepo.UpsertMonotonic(conversationID, reader.UserID, upTo, now); err != nil {
		return nil, apperr.Internal("failed to record read position", err)
	}
	if marked == nil {
		marked = []uint{}
	}

	_ = s.cache.InvalidateUnread(reader.UserID)
	if len(marked) > 0 {
		_ = s.cache.InvalidateRecent(conversationID)
	}

	s.broadcaster.Broadcast(conversationID, events.New(events.MessagesRead, conversationID, events.ReadPayload{
		ReaderID:  reader.UserID,
		UpToSeq:   upTo,
		ReadAt:    now,
		MarkedIDs: marked,
	}))

	return &ReadResult{ConversationID: conversationID, UpToSeq: upTo, MarkedIDs: marked, ReadAt: now}, nil
}

// GetUnreadCount returns per-conversation unread counts and their total. Results are
// cached briefly and invalidated by sends, deletes and reads.
func (s *ReadReceiptService) GetUnreadCount(userID uint) (*models.UnreadCounts, error) {
	cached, version, ok := s.cache.GetUnread(userID)
	if ok {
		return cached, nil
	}

	perConv, err := s.readStateRepo.CountUnread(userID)
	if err != nil {
		return nil, apperr.Internal("failed to count unread messages", err)
	}

	counts := &models.UnreadCounts{Conversations: perConv}
	if counts.Conversations == nil {
		counts.Conversations = map[uint]int64{}
	}
	for _, n := range counts.Conversations {
		counts.Total += n
	}

	if err := s.cache.SetUnread(userID, version, counts); err != nil {
		zap.L().Debug("unread cache write failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return counts, nil
}
