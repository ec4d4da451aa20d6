package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
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

const DefaultMaxMessageLength = 4000

// ConversationAccess resolves a caller's active membership in a conversation.
type ConversationAccess interface {
	Access(conversationID, userID uint) (*models.Conversation, *models.Participant, error)
}

// TypingStopper clears a sender's typing indicator once their message lands.
type TypingStopper interface {
	Stop(conversationID, userID uint)
}

type MessageService struct {
	messageRepo repository.MessageRepositoryInterface
	access      ConversationAccess
	cache       *cache.MessageCache
	broadcaster Broadcaster
	typing      TypingStopper
	maxLength   int
	convLocks   *keyedMutex
}

func NewMessageService(
	messageRepo repository.MessageRepositoryInterface,
	access ConversationAccess,
	messageCache *cache.MessageCache,
	maxLength int,
) *MessageService {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &MessageService{
		messageRepo: messageRepo,
		access:      access,
		cache:       messageCache,
		broadcaster: noopBroadcaster{},
		maxLength:   maxLength,
		convLocks:   newKeyedMutex(),
	}
}

func (s *MessageService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *MessageService) SetTyping(t TypingStopper) {
	s.typing = t
}

type AttachmentInput struct {
	Name         string `json:"name" validate:"required,max=255"`
	URL          string `json:"url" validate:"required,url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" validate:"omitempty,url"`
	MimeType     string `json:"mime_type" validate:"required,max=127"`
	SizeBytes    int64  `json:"size_bytes" validate:"gte=0"`
}

type SendMessageInput struct {
	ClientID    string             `json:"client_id"`
	Body        string             `json:"body"`
	MessageType models.MessageType `json:"message_type"`
	Attachments []AttachmentInput  `json:"attachments" validate:"max=10,dive"`
}

type SendResult struct {
	Message   *models.Message
	Duplicate bool
}

// inferType picks image when every attachment is an image, file when any is not, text otherwise.
func inferType(attachments []AttachmentInput) models.MessageType {
	if len(attachments) == 0 {
		return models.TextMessage
	}
	for _, a := range attachments {
		if !strings.HasPrefix(a.MimeType, "image/") {
			return models.FileMessage
		}
	}
	return models.ImageMessage
}

// Send persists a message and broadcasts message:new. A retried send with the same
// client id returns the stored message with Duplicate set and broadcasts nothing.
func (s *MessageService) Send(conversationID uint, sender auth.Identity, input SendMessageInput) (*SendResult, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" && len(input.Attachments) == 0 {
		return nil, apperr.Validation("message must have a body or at least one attachment")
	}
	if len(body) > s.maxLength {
		return nil, apperr.Validation("message body is too long")
	}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	msgType := input.MessageType
	if msgType == "" {
		msgType = inferType(input.Attachments)
	}
	if !msgType.Valid() {
		return nil, apperr.Validation("invalid message type")
	}

	clientID := strings.TrimSpace(input.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	} else if !validation.ValidClientID(clientID) {
		return nil, apperr.Validation("client_id must be a UUID")
	}

	conv, _, err := s.access.Access(conversationID, sender.UserID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ConversationID: conversationID,
		ClientID:       clientID,
		SenderID:       sender.UserID,
		Body:           body,
		MessageType:    msgType,
		Attachments:    make([]models.Attachment, 0, len(input.Attachments)),
	}
	for _, a := range input.Attachments {
		message.Attachments = append(message.Attachments, models.Attachment{
			Name:         a.Name,
			URL:          a.URL,
			ThumbnailURL: a.ThumbnailURL,
			MimeType:     a.MimeType,
			SizeBytes:    a.SizeBytes,
		})
	}

	// Persist and enqueue the broadcast under one lock so room order matches seq order.
	unlock := s.convLocks.Lock(conversationID)
	duplicate, err := s.messageRepo.Append(message)
	if err != nil {
		unlock()
		zap.L().Error("append message failed",
			zap.Uint("conversation_id", conversationID),
			zap.Uint("user_id", sender.UserID),
			zap.Error(err))
		return nil, notFoundOr("conversation", err)
	}
	if !duplicate {
		s.broadcaster.Broadcast(conversationID, events.New(events.MessageNew, conversationID, message.ToResponse()))
	}
	unlock()

	if duplicate {
		return &SendResult{Message: message, Duplicate: true}, nil
	}

	metrics.MessagesPersisted.WithLabelValues(string(message.MessageType)).Inc()
	if s.typing != nil {
		s.typing.Stop(conversationID, sender.UserID)
	}
	s.invalidate(conv, sender.UserID)

	return &SendResult{Message: message}, nil
}

// Edit replaces the body of the editor's own message and broadcasts message:edited.
func (s *MessageService) Edit(messageID uint, editor auth.Identity, newBody string) (*models.Message, error) {
	message, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		return nil, notFoundOr("message", err)
	}
	if message.SenderID != editor.UserID {
		return nil, apperr.Forbidden("only the sender can edit a message")
	}
	if message.IsDeleted {
		return nil, apperr.Validation("deleted messages cannot be edited")
	}

	body := strings.TrimSpace(newBody)
	if body == "" && len(message.Attachments) == 0 {
		return nil, apperr.Validation("message must have a body or at least one attachment")
	}
	if len(body) > s.maxLength {
		return nil, apperr.Validation("message body is too long")
	}

	if _, _, err := s.access.Access(message.ConversationID, editor.UserID); err != nil {
		return nil, err
	}

	unlock := s.convLocks.Lock(message.ConversationID)
	defer unlock()

	if err := s.messageRepo.Edit(messageID, body, time.Now().UTC()); err != nil {
		return nil, notFoundOr("message", err)
	}
	updated, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		return nil, notFoundOr("message", err)
	}

	s.broadcaster.Broadcast(updated.ConversationID, events.New(events.MessageEdited, updated.ConversationID, updated.ToResponse()))
	_ = s.cache.InvalidateRecent(updated.ConversationID)
	return updated, nil
}

// Delete tombstones a message. Senders may delete their own messages; admins and
// managers may delete any message in conversations they belong to. Deleting a
// tombstone again succeeds without a second broadcast.
func (s *MessageService) Delete(messageID uint, requester auth.Identity) error {
	message, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		return notFoundOr("message", err)
	}

	conv, _, err := s.access.Access(message.ConversationID, requester.UserID)
	if err != nil {
		return err
	}
	if message.SenderID != requester.UserID && !requester.Role.Elevated() {
		return apperr.Forbidden("only the sender can delete this message")
	}
	if message.IsDeleted {
		return nil
	}

	unlock := s.convLocks.Lock(message.ConversationID)
	defer unlock()

	if err := s.messageRepo.Tombstone(messageID, time.Now().UTC()); err != nil {
		if repository.IsNotFound(err) {
			// Lost a race with another delete.
			return nil
		}
		return apperr.Internal("failed to delete message", err)
	}

	s.broadcaster.Broadcast(message.ConversationID, events.New(events.MessageDeleted, message.ConversationID,
		events.MessageDeletedPayload{MessageID: messageID}))
	s.invalidate(conv, message.SenderID)
	return nil
}

// History returns a page of messages older than beforeSeq (0 for the newest page), oldest first.
func (s *MessageService) History(conversationID uint, reader auth.Identity, beforeSeq uint64, limit int) ([]models.MessageResponse, error) {
	if _, _, err := s.access.Access(conversationID, reader.UserID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > repository.MaxHistoryLimit {
		limit = repository.DefaultHistoryLimit
	}

	newestPage := beforeSeq == 0 && limit == repository.DefaultHistoryLimit
	var messages []models.Message
	version := cache.NoVersion
	if newestPage {
		if cached, v, ok := s.cache.GetRecent(conversationID); ok {
			messages = cached
		} else {
			version = v
		}
	}
	if messages == nil {
		var err error
		messages, err = s.messageRepo.History(conversationID, beforeSeq, limit)
		if err != nil {
			return nil, apperr.Internal("failed to load history", err)
		}
		if newestPage {
			_ = s.cache.SetRecent(conversationID, version, messages)
		}
	}

	out := make([]models.MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, messages[i].ToResponse())
	}
	return out, nil
}

// invalidate drops cached history and the unread badges of everyone but author.
func (s *MessageService) invalidate(conv *models.Conversation, author uint) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateRecent(conv.ID)
	others := make([]uint, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		if p.UserID != author {
			others = append(others, p.UserID)
		}
	}
	_ = s.cache.InvalidateUnread(others...)
}
