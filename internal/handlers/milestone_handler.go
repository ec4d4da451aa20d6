package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/service"
)

type MilestoneAPI interface {
	Create(projectID uint, input service.CreateMilestoneInput, actor auth.Identity) (*models.Milestone, error)
	List(projectID uint, actor auth.Identity) ([]models.Milestone, error)
	UpdateStatus(milestoneID uint, requested models.MilestoneStatus, actor auth.Identity) (*models.Milestone, error)
	RequestReminder(milestoneID uint, actor auth.Identity) (bool, error)
}

type PaymentAPI interface {
	CreateOrder(ctx context.Context, milestoneID uint, actor auth.Identity) (*service.OrderResult, error)
	VerifyPayment(ctx context.Context, milestoneID uint, actor auth.Identity, input service.VerifyPaymentInput) (*service.VerifyResult, error)
}

type MilestoneHandler struct {
	milestones MilestoneAPI
	payments   PaymentAPI
}

func NewMilestoneHandler(milestones MilestoneAPI, payments PaymentAPI) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones, payments: payments}
}

func (h *MilestoneHandler) List(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	projectID, err := httpx.ParamUint(c, "projectId")
	if err != nil {
		return httpx.FromError(c, err)
	}

	milestones, err := h.milestones.List(projectID, identity)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"milestones": milestones})
}

func (h *MilestoneHandler) Create(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	projectID, err := httpx.ParamUint(c, "projectId")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var input service.CreateMilestoneInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, apperr.CodeValidation, "Invalid request body")
	}

	milestone, err := h.milestones.Create(projectID, input, identity)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(milestone)
}

type statusRequest struct {
	Status models.MilestoneStatus `json:"status"`
}

func (h *MilestoneHandler) UpdateStatus(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	milestoneID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, apperr.CodeValidation, "Invalid request body")
	}
	if req.Status == "" {
		return httpx.FromError(c, apperr.Validation("status is required"))
	}

	milestone, err := h.milestones.UpdateStatus(milestoneID, req.Status, identity)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(milestone)
}

func (h *MilestoneHandler) CreateOrder(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	milestoneID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	order, err := h.payments.CreateOrder(c.UserContext(), milestoneID, identity)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *MilestoneHandler) VerifyPayment(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	milestoneID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var input service.VerifyPaymentInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, apperr.CodeValidation, "Invalid request body")
	}

	result, err := h.payments.VerifyPayment(c.UserContext(), milestoneID, identity, input)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(result)
}

func (h *MilestoneHandler) RequestReminder(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	milestoneID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	queued, err := h.milestones.RequestReminder(milestoneID, identity)
	if err != nil {
		return httpx.FromError(c, err)
	}

	status := fiber.StatusAccepted
	if !queued {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"queued": queued})
}
