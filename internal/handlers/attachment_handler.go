package handlers

import (
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/service"
)

type AttachmentHandler struct {
	uploader Uploader
}

func NewAttachmentHandler(uploader Uploader) *AttachmentHandler {
	return &AttachmentHandler{uploader: uploader}
}

// Upload stores every file in the "files" field and reports each one separately.
func (h *AttachmentHandler) Upload(c *fiber.Ctx) error {
	identity, err := httpx.CurrentIdentity(c)
	if err != nil {
		return httpx.Unauthorized(c, apperr.CodeAuth, "Unauthorized")
	}
	if h.uploader == nil {
		return httpx.FromError(c, apperr.Unavailable("attachment storage is not configured"))
	}

	form, err := c.MultipartForm()
	if err != nil {
		return httpx.BadRequest(c, apperr.CodeValidation, "Invalid multipart body")
	}

	files, closeAll, err := openFiles(form.File["files"])
	if err != nil {
		return httpx.FromError(c, err)
	}
	defer closeAll()

	results, err := h.uploader.Upload(c.UserContext(), identity.UserID, files)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"files": results})
}

// openFiles opens every part. The returned func closes whatever was opened.
func openFiles(headers []*multipart.FileHeader) ([]service.UploadFile, func(), error) {
	files := make([]service.UploadFile, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, apperr.Validation("could not read uploaded file " + fh.Filename)
		}
		opened = append(opened, f)
		files = append(files, service.UploadFile{Name: fh.Filename, Size: fh.Size, Reader: f})
	}
	return files, closeAll, nil
}
