package httpx

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/apperr"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/auth"
)

// IdentityKey is the fiber local holding the authenticated auth.Identity.
const IdentityKey = "identity"

type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

// FromError writes a service error. Internal causes are logged, never returned.
func FromError(c *fiber.Ctx, err error) error {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("internal server error", err)
	}
	if appErr.Status >= fiber.StatusInternalServerError && appErr.Code == apperr.CodeInternal {
		zap.L().Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("request_id", requestID(c)),
			zap.Error(err))
		return c.Status(appErr.Status).JSON(ErrorResponse{
			Error:     "internal server error",
			Code:      appErr.Code,
			RequestID: requestID(c),
		})
	}
	return c.Status(appErr.Status).JSON(ErrorResponse{
		Error:     appErr.Message,
		Code:      appErr.Code,
		Retryable: appErr.Retryable(),
		Details:   appErr.Details,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func Internal(c *fiber.Ctx, code string) error {
	return Error(c, fiber.StatusInternalServerError, code, "Internal server error")
}

func SetIdentity(c *fiber.Ctx, id auth.Identity) {
	c.Locals(IdentityKey, id)
}

// CurrentIdentity returns the caller stored by the auth middleware.
func CurrentIdentity(c *fiber.Ctx) (auth.Identity, error) {
	v := c.Locals(IdentityKey)
	if v == nil {
		return auth.Identity{}, fmt.Errorf("missing local %s", IdentityKey)
	}
	id, ok := v.(auth.Identity)
	if !ok || id.UserID == 0 {
		return auth.Identity{}, fmt.Errorf("invalid local %s", IdentityKey)
	}
	return id, nil
}

// ParamUint parses a positive integer route parameter.
func ParamUint(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return uint(v), nil
}

// QueryUint parses an optional non-negative integer query parameter.
func QueryUint(c *fiber.Ctx, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid " + name)
	}
	return v, nil
}
