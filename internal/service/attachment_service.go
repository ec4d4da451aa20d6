package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/storage"
)

const (
	DefaultMaxAttachmentBytes = 25 * 1024 * 1024
	MaxFilesPerUpload         = 10
	attachmentPrefix          = "attachments"
)

// ObjectStore is the attachment storage collaborator.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectStat, error)
	DeleteObject(ctx context.Context, key string) error
}

var blockedMimeTypes = map[string]bool{
	"application/x-msdownload":                      true,
	"application/x-executable":                      true,
	"application/x-elf":                             true,
	"application/x-mach-binary":                     true,
	"application/x-sh":                              true,
	"application/vnd.microsoft.portable-executable": true,
}

// AttachmentService uploads attachment bytes out-of-band, before the message that
// references them is sent.
type AttachmentService struct {
	store         ObjectStore
	publicBaseURL string
	maxBytes      int64
}

func NewAttachmentService(store ObjectStore, publicBaseURL string, maxBytes int64) *AttachmentService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAttachmentBytes
	}
	return &AttachmentService{
		store:         store,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		maxBytes:      maxBytes,
	}
}

func (s *AttachmentService) Enabled() bool {
	return s != nil && s.store != nil
}

type UploadFile struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// UploadResult reports one file. Exactly one of Attachment and Error is set.
type UploadResult struct {
	Name       string           `json:"name"`
	OK         bool             `json:"ok"`
	Attachment *AttachmentInput `json:"attachment,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Upload stores every file independently. A failing file never aborts the others.
func (s *AttachmentService) Upload(ctx context.Context, uploaderID uint, files []UploadFile) ([]UploadResult, error) {
	if !s.Enabled() {
		return nil, apperr.Unavailable("attachment storage is not configured")
	}
	if len(files) == 0 {
		return nil, apperr.Validation("no files uploaded")
	}
	if len(files) > MaxFilesPerUpload {
		return nil, apperr.Validation(fmt.Sprintf("at most %d files per upload", MaxFilesPerUpload))
	}

	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		att, err := s.uploadOne(ctx, uploaderID, f)
		if err != nil {
			zap.L().Warn("attachment upload failed",
				zap.Uint("user_id", uploaderID),
				zap.String("file", f.Name),
				zap.Error(err))
			results = append(results, UploadResult{Name: f.Name, Error: uploadErrorMessage(err)})
			continue
		}
		results = append(results, UploadResult{Name: f.Name, OK: true, Attachment: att})
	}
	return results, nil
}

func uploadErrorMessage(err error) string {
	if appErr, ok := apperr.As(err); ok {
		return appErr.Message
	}
	return "upload failed"
}

func (s *AttachmentService) uploadOne(ctx context.Context, uploaderID uint, f UploadFile) (*AttachmentInput, error) {
	name := sanitizeFileName(f.Name)
	if f.Size > s.maxBytes {
		return nil, apperr.Validation(storage.ErrTooLarge.Error())
	}

	data, err := io.ReadAll(io.LimitReader(f.Reader, s.maxBytes+1))
	if err != nil {
		return nil, apperr.Internal("read upload", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apperr.Validation(storage.ErrTooLarge.Error())
	}
	if len(data) == 0 {
		return nil, apperr.Validation("file is empty")
	}

	mt := mimetype.Detect(data)
	mimeType := mt.String()
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	if blockedMimeTypes[mimeType] {
		return nil, apperr.Validation("file type is not allowed")
	}

	base := fmt.Sprintf("%d/%s", uploaderID, uuid.NewString())
	key, err := storage.SafeJoinKey(attachmentPrefix, base+mt.Extension())
	if err != nil {
		return nil, apperr.Internal("build object key", err)
	}
	if _, err := s.store.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return nil, apperr.Internal("store attachment", err)
	}

	att := &AttachmentInput{
		Name:      name,
		URL:       s.mediaURL(key),
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
	}

	if storage.IsThumbnailable(mimeType) {
		if thumb, err := storage.MakeThumbnail(data, storage.DefaultThumbnailOptions()); err == nil {
			thumbKey, _ := storage.SafeJoinKey(attachmentPrefix, base+"_thumb.jpg")
			if _, err := s.store.PutObject(ctx, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err == nil {
				att.ThumbnailURL = s.mediaURL(thumbKey)
			} else {
				zap.L().Warn("thumbnail store failed", zap.String("key", thumbKey), zap.Error(err))
			}
		} else {
			zap.L().Debug("thumbnail skipped", zap.String("key", key), zap.Error(err))
		}
	}

	return att, nil
}

func (s *AttachmentService) mediaURL(key string) string {
	return s.publicBaseURL + "/media/" + key
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
