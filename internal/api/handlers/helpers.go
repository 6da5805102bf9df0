package handlers

import (
	"errors"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/storage"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

func statusFor(err error) (int, string) {
	var (
		missing  *service.MissingCapabilityError
		exchange *service.OAuthExchangeFailedError
		invalid  validation.Errors
	)

	switch {
	case errors.Is(err, service.ErrExpired):
		return fiber.StatusGone, "expired"
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrForbidden):
		return fiber.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrUnsupportedPlatform):
		return fiber.StatusBadRequest, "unsupported_platform"
	case errors.Is(err, service.ErrInvalidState):
		return fiber.StatusBadRequest, "invalid_state"
	case errors.Is(err, service.ErrNoConnection):
		return fiber.StatusUnprocessableEntity, "no_connection"
	case errors.As(err, &missing):
		return fiber.StatusUnprocessableEntity, "missing_capability"
	case errors.As(err, &exchange):
		return fiber.StatusBadGateway, "oauth_exchange_failed"
	case errors.As(err, &invalid):
		return fiber.StatusBadRequest, "validation_failed"
	case errors.Is(err, storage.ErrUnsupportedMedia):
		return fiber.StatusUnsupportedMediaType, "unsupported_media"
	}
	return fiber.StatusInternalServerError, "internal_error"
}

func errorResponse(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)

	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
		msg = "something went wrong"
	}

	return c.Status(status).JSON(transfer.ErrorResponse{Error: msg, Code: code})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(transfer.ErrorResponse{Error: msg, Code: "bad_request"})
}
