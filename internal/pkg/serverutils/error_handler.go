package serverutils

import (
	"errors"

	"church-portal-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeValidation:
		return fiber.StatusBadRequest
	case apperror.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case apperror.CodeForbidden:
		return fiber.StatusForbidden
	case apperror.CodeNotFound:
		return fiber.StatusNotFound
	case apperror.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware turns errors returned by downstream handlers into BaseResponse
// bodies. Fiber's own errors keep their status.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		}

		appErr := apperror.From(err)
		status := StatusFor(appErr.Code)
		body := ErrorResponse(status, appErr.Message)
		body.Details = appErr.Details
		return c.Status(status).JSON(body)
	}
}
