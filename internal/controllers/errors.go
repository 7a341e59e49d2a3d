package controllers

import (
	"errors"
	"log/slog"

	"inkwell-backend/internal/apperr"

	"github.com/gofiber/fiber/v3"
)

// ErrorHandler is the app-wide fiber error handler. Typed service errors map
// onto their HTTP status; anything else is an opaque 500. Causes are logged,
// never sent to the client.
func ErrorHandler(c fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status := appErr.Status()
		if status >= fiber.StatusInternalServerError {
			slog.Error("request failed", "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(ErrorResponse{
			Success:    false,
			StatusCode: status,
			Message:    appErr.Message,
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Success:    false,
			StatusCode: fiberErr.Code,
			Message:    fiberErr.Message,
		})
	}

	slog.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Success:    false,
		StatusCode: fiber.StatusInternalServerError,
		Message:    "Internal server error",
	})
}
