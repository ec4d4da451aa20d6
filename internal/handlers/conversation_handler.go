package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/service"
)

type ConversationAPI interface {
	EnsureConversation(projectID uint, input service.EnsureConversationInput, actor auth.Identity) (*models.Conversation, bool, error)
	ListForUser(userID uint) ([]models.ConversationResponse, error)
	UpsertParticipant(conversationID uint, input service.ParticipantInput, actor auth.Identity) error
	RemoveParticipant(conversationID, userID uint, actor auth.Identity) error
}

type ConversationHandler struct {
	conversations ConversationAPI
}

func NewConversationHandler(conversations ConversationAPI) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) Ensure(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	projectID, err := httpx.ParamUint(c, "projectId")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var input service.EnsureConversationInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return httpx.BadRequest(c, apperr.CodeValidation, "Invalid request body")
		}
	}

	conv, created, err := h.conversations.EnsureConversation(projectID, input, identity)
	if err != nil {
		return httpx.FromError(c, err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(conv.ToResponse(0))
}

func (h *ConversationHandler) List(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}

	convs, err := h.conversations.ListForUser(identity.UserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

type participantRequest struct {
	Role models.Role `json:"role"`
}

func (h *ConversationHandler) PutParticipant(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	conversationID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}
	userID, err := httpx.ParamUint(c, "userId")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var req participantRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, apperr.CodeValidation, "Invalid request body")
	}

	input := service.ParticipantInput{UserID: userID, Role: req.Role}
	if err := h.conversations.UpsertParticipant(conversationID, input, identity); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConversationHandler) DeleteParticipant(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	conversationID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}
	userID, err := httpx.ParamUint(c, "userId")
	if err != nil {
		return httpx.FromError(c, err)
	}

	if err := h.conversations.RemoveParticipant(conversationID, userID, identity); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
