package response

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/shortsmith/api/internal/model"
)

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeEmptyInput      = "EMPTY_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"
	CodeJobNotReady     = "JOB_NOT_READY"
	CodeReauthRequired  = "REAUTH_REQUIRED"
	CodeInvalidState    = "INVALID_STATE"
	CodeNotConfigured   = "NOT_CONFIGURED"
	CodeProviderError   = "PROVIDER_ERROR"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func EmptyInput(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, CodeEmptyInput, message, nil)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, CodeForbidden, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusConflict, CodeJobNotReady, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ReauthRequired(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeReauthRequired, message, nil)
}

func InvalidState(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, CodeInvalidState, message, nil)
}

func NotConfigured(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusServiceUnavailable, CodeNotConfigured, message, nil)
}

func ProviderError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadGateway, CodeProviderError, message, nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

// FromError maps a domain error onto its HTTP answer. Anything unknown is
// a SERVICE_ERROR carrying fallback as message.
func FromError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		return EmptyInput(c, err.Error())
	case errors.Is(err, model.ErrInvalidArtifact):
		return ValidationError(c, err.Error(), nil)
	case errors.Is(err, model.ErrJobNotFound):
		return NotFound(c, "Job not found")
	case errors.Is(err, model.ErrJobNotReady):
		return Conflict(c, "Job has not succeeded yet")
	case errors.Is(err, model.ErrInvalidState):
		return InvalidState(c, err.Error())
	case errors.Is(err, model.ErrReauthorizationRequired):
		return ReauthRequired(c, "Reconnect your YouTube account")
	case errors.Is(err, model.ErrNotConfigured):
		return NotConfigured(c, err.Error())
	}
	return ServiceError(c, fallback)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
