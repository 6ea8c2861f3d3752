package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
)

// ErrorHandler maps domain errors onto HTTP statuses with a {"error": msg} body.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code, msg = fe.Code, fe.Message
		case errors.Is(err, apperr.ErrInvalidArgument):
			code, msg = fiber.StatusBadRequest, err.Error()
		case errors.Is(err, apperr.ErrNotFound):
			code, msg = fiber.StatusNotFound, err.Error()
		}

		switch {
		case code >= fiber.StatusInternalServerError:
			log.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		case code == fiber.StatusBadRequest:
			log.Warn("bad request", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
