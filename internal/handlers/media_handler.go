package handlers

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/httpx"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/storage"
)

// ObjectReader is the read side of attachment storage.
type ObjectReader interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectStat, error)
}

type MediaHandler struct {
	store ObjectReader
}

func NewMediaHandler(store ObjectReader) *MediaHandler {
	return &MediaHandler{store: store}
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

// GetObject streams a stored attachment or thumbnail. Keys are immutable, so
// responses are cacheable forever and revalidated by ETag.
func (h *MediaHandler) GetObject(c *fiber.Ctx) error {
	if h.store == nil {
		return httpx.FromError(c, apperr.Unavailable("attachment storage is not configured"))
	}

	key, err := storage.SafeJoinKey("", c.Params("*"))
	if err != nil {
		return httpx.Error(c, fiber.StatusNotFound, apperr.CodeNotFound, "Not found")
	}

	obj, st, err := h.store.GetObject(c.UserContext(), key)
	if err != nil {
		if storage.IsNotFound(err) {
			return httpx.Error(c, fiber.StatusNotFound, apperr.CodeNotFound, "Not found")
		}
		zap.L().Error("media fetch failed", zap.String("key", key), zap.Error(err))
		return httpx.Internal(c, apperr.CodeInternal)
	}

	if st.ETag != "" {
		c.Set("ETag", "\""+st.ETag+"\"")
		if inm := normalizeETag(c.Get("If-None-Match")); inm != "" && inm == normalizeETag(st.ETag) {
			_ = obj.Close()
			return c.SendStatus(fiber.StatusNotModified)
		}
	}
	if !st.LastModified.IsZero() {
		c.Set("Last-Modified", st.LastModified.UTC().Format(time.RFC1123))
	}

	c.Set("Cache-Control", "private, max-age=31536000, immutable")
	if st.ContentType != "" {
		c.Type(st.ContentType)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	if st.Size > 0 {
		c.Set("Content-Length", strconv.FormatInt(st.Size, 10))
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			_ = obj.Close()
		}()

		n, copyErr := io.Copy(w, obj)
		if copyErr == nil {
			copyErr = w.Flush()
		}
		if copyErr != nil {
			zap.L().Warn("media stream aborted", zap.String("key", key), zap.Int64("bytes", n), zap.Error(copyErr))
		}
	})
	return nil
}
