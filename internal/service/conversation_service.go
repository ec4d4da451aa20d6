package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/repository"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/validation"
)

// RoomEvictor removes a user's live connections from a room after membership is revoked.
type RoomEvictor interface {
	EvictUser(conversationID, userID uint)
}

// UnreadCounter supplies the unread badge used when listing conversations.
type UnreadCounter interface {
	GetUnreadCount(userID uint) (*models.UnreadCounts, error)
}

type ConversationService struct {
	convRepo repository.ConversationRepositoryInterface
	unread   UnreadCounter
	evictor  RoomEvictor
}

func NewConversationService(convRepo repository.ConversationRepositoryInterface) *ConversationService {
	return &ConversationService{convRepo: convRepo}
}

func (s *ConversationService) SetUnreadCounter(u UnreadCounter) {
	s.unread = u
}

func (s *ConversationService) SetRoomEvictor(e RoomEvictor) {
	s.evictor = e
}

type ParticipantInput struct {
	UserID uint        `json:"user_id" validate:"required"`
	Role   models.Role `json:"role" validate:"required,oneof=admin manager developer client"`
}

type EnsureConversationInput struct {
	Title        string             `json:"title" validate:"max=200"`
	Participants []ParticipantInput `json:"participants" validate:"dive"`
}

// EnsureConversation opens the project's conversation on first use and syncs the given participants.
func (s *ConversationService) EnsureConversation(projectID uint, input EnsureConversationInput, actor auth.Identity) (*models.Conversation, bool, error) {
	if !actor.Role.Elevated() {
		return nil, false, apperr.Forbidden("only admins and managers can open project conversations")
	}
	if projectID == 0 {
		return nil, false, apperr.Validation("project id is required")
	}
	if err := validation.Struct(input); err != nil {
		return nil, false, err
	}

	participants := make([]models.Participant, 0, len(input.Participants)+1)
	seen := map[uint]bool{}
	for _, p := range input.Participants {
		if seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		participants = append(participants, models.Participant{UserID: p.UserID, Role: p.Role})
	}
	if !seen[actor.UserID] {
		participants = append(participants, models.Participant{UserID: actor.UserID, Role: actor.Role})
	}

	conv, created, err := s.convRepo.EnsureForProject(projectID, strings.TrimSpace(input.Title), participants)
	if err != nil {
		return nil, false, apperr.Internal("failed to open conversation", err)
	}
	if created {
		zap.L().Info("conversation created",
			zap.Uint("conversation_id", conv.ID),
			zap.Uint("project_id", projectID),
			zap.Int("participants", len(participants)))
	}
	return conv, created, nil
}

// Access resolves the conversation and the caller's active membership in it.
func (s *ConversationService) Access(conversationID, userID uint) (*models.Conversation, *models.Participant, error) {
	conv, err := s.convRepo.FindByID(conversationID)
	if err != nil {
		return nil, nil, notFoundOr("conversation", err)
	}
	for i := range conv.Participants {
		p := &conv.Participants[i]
		if p.UserID == userID && p.IsActive {
			return conv, p, nil
		}
	}
	return nil, nil, apperr.Forbidden("not a participant of this conversation")
}

// RequireProjectMember allows admins everywhere and others only on projects whose
// conversation lists them as active participants.
func (s *ConversationService) RequireProjectMember(projectID uint, actor auth.Identity) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	conv, err := s.convRepo.FindByProjectID(projectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return apperr.Forbidden("not a member of this project")
		}
		return apperr.Internal("failed to load project conversation", err)
	}
	for _, p := range conv.Participants {
		if p.UserID == actor.UserID && p.IsActive {
			return nil
		}
	}
	return apperr.Forbidden("not a member of this project")
}

// ProjectConversationID returns the conversation id of a project, or 0 if it has none yet.
func (s *ConversationService) ProjectConversationID(projectID uint) uint {
	conv, err := s.convRepo.FindByProjectID(projectID)
	if err != nil {
		return 0
	}
	return conv.ID
}

func (s *ConversationService) ListForUser(userID uint) ([]models.ConversationResponse, error) {
	convs, err := s.convRepo.ListForUser(userID)
	if err != nil {
		return nil, apperr.Internal("failed to list conversations", err)
	}

	var counts map[uint]int64
	if s.unread != nil {
		if badge, err := s.unread.GetUnreadCount(userID); err == nil {
			counts = badge.Conversations
		} else {
			zap.L().Warn("unread counts unavailable for conversation list", zap.Uint("user_id", userID), zap.Error(err))
		}
	}

	out := make([]models.ConversationResponse, 0, len(convs))
	for i := range convs {
		out = append(out, convs[i].ToResponse(counts[convs[i].ID]))
	}
	return out, nil
}

// ConversationIDsForUser lists the rooms a user belongs to.
func (s *ConversationService) ConversationIDsForUser(userID uint) ([]uint, error) {
	return s.convRepo.ConversationIDsForUser(userID)
}

func (s *ConversationService) UpsertParticipant(conversationID uint, input ParticipantInput, actor auth.Identity) error {
	if !actor.Role.Elevated() {
		return apperr.Forbidden("only admins and managers can change participants")
	}
	if err := validation.Struct(input); err != nil {
		return err
	}
	if _, err := s.convRepo.FindByID(conversationID); err != nil {
		return notFoundOr("conversation", err)
	}
	if err := s.convRepo.UpsertParticipant(&models.Participant{
		ConversationID: conversationID,
		UserID:         input.UserID,
		Role:           input.Role,
	}); err != nil {
		return apperr.Internal("failed to save participant", err)
	}
	return nil
}

// RemoveParticipant soft-removes a participant and drops their live room subscriptions.
func (s *ConversationService) RemoveParticipant(conversationID, userID uint, actor auth.Identity) error {
	if !actor.Role.Elevated() {
		return apperr.Forbidden("only admins and managers can change participants")
	}
	if err := s.convRepo.DeactivateParticipant(conversationID, userID); err != nil {
		return notFoundOr("participant", err)
	}
	if s.evictor != nil {
		s.evictor.EvictUser(conversationID, userID)
	}
	return nil
}
