package handlers

import (
	"context"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/models"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/repository"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/service"
)

type MessageAPI interface {
	Send(conversationID uint, sender auth.Identity, input service.SendMessageInput) (*service.SendResult, error)
	Edit(messageID uint, editor auth.Identity, newBody string) (*models.Message, error)
	Delete(messageID uint, requester auth.Identity) error
	History(conversationID uint, reader auth.Identity, beforeSeq uint64, limit int) ([]models.MessageResponse, error)
}

type ReceiptAPI interface {
	MarkRead(conversationID uint, reader auth.Identity) (*service.ReadResult, error)
	GetUnreadCount(userID uint) (*models.UnreadCounts, error)
}

type Uploader interface {
	Upload(ctx context.Context, uploaderID uint, files []service.UploadFile) ([]service.UploadResult, error)
}

type MessageHandler struct {
	messages MessageAPI
	receipts ReceiptAPI
	uploader Uploader
}

func NewMessageHandler(messages MessageAPI, receipts ReceiptAPI, uploader Uploader) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		receipts: receipts,
		uploader: uploader,
	}
}

type sendResponse struct {
	Message   models.MessageResponse `json:"message"`
	Duplicate bool                   `json:"duplicate"`
	Uploads   []service.UploadResult `json:"uploads,omitempty"`
}

// SendMessage accepts JSON or multipart. Multipart files are uploaded first; files
// that fail are reported in uploads and the text is still sent.
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	conversationID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var input service.SendMessageInput
	var uploads []service.UploadResult

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return httpx.BadRequest(c, apperr.CodeValidation, "Invalid multipart body")
		}
		input.Body = formValue(form, "body")
		input.ClientID = formValue(form, "client_id")
		input.MessageType = models.MessageType(formValue(form, "message_type"))

		if files := form.File["files"]; len(files) > 0 {
			uploads, err = h.upload(c, identity.UserID, files)
			if err != nil {
				if strings.TrimSpace(input.Body) == "" {
					return httpx.FromError(c, err)
				}
				zap.L().Warn("attachments dropped, sending text only",
					zap.Uint("user_id", identity.UserID),
					zap.Uint("conversation_id", conversationID),
					zap.Error(err))
			}
			for _, u := range uploads {
				if u.OK && u.Attachment != nil {
					input.Attachments = append(input.Attachments, *u.Attachment)
				}
			}
		}
	} else if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, apperr.CodeValidation, "Invalid request body")
	}

	result, err := h.messages.Send(conversationID, identity, input)
	if err != nil {
		return httpx.FromError(c, err)
	}

	status := fiber.StatusCreated
	if result.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(sendResponse{
		Message:   result.Message.ToResponse(),
		Duplicate: result.Duplicate,
		Uploads:   uploads,
	})
}

func (h *MessageHandler) upload(c *fiber.Ctx, userID uint, headers []*multipart.FileHeader) ([]service.UploadResult, error) {
	if h.uploader == nil {
		return nil, apperr.Unavailable("attachment storage is not configured")
	}
	files, closeAll, err := openFiles(headers)
	if err != nil {
		return nil, err
	}
	defer closeAll()
	return h.uploader.Upload(c.UserContext(), userID, files)
}

func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	conversationID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}
	before, err := httpx.QueryUint(c, "before")
	if err != nil {
		return httpx.FromError(c, err)
	}
	limit := c.QueryInt("limit", repository.DefaultHistoryLimit)

	messages, err := h.messages.History(conversationID, identity, before, limit)
	if err != nil {
		return httpx.FromError(c, err)
	}

	result := fiber.Map{
		"messages": messages,
		"count":    len(messages),
	}
	// Pages are oldest-first; the first element is the cursor for older messages.
	if len(messages) > 0 {
		result["next_before"] = messages[0].Seq
	}
	return c.JSON(result)
}

type editMessageRequest struct {
	Body string `json:"body"`
}

func (h *MessageHandler) EditMessage(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	messageID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, apperr.CodeValidation, "Invalid request body")
	}

	message, err := h.messages.Edit(messageID, identity, req.Body)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(message.ToResponse())
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	messageID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	if err := h.messages.Delete(messageID, identity); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MessageHandler) MarkRead(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	conversationID, err := httpx.ParamUint(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	result, err := h.receipts.MarkRead(conversationID, identity)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(result)
}

func (h *MessageHandler) GetUnread(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}

	counts, err := h.receipts.GetUnreadCount(identity.UserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(counts)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
