package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
)

type MediaUploader interface {
	Upload(ctx context.Context, userID string, data []byte) (*models.MediaRef, error)
}

type MediaHandler struct {
	store MediaUploader
}

func NewMediaHandler(store MediaUploader) *MediaHandler {
	return &MediaHandler{store: store}
}

// Upload stores the multipart "file" field and returns a reference that can
// be attached to a post.
func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "missing file")
	}

	f, err := header.Open()
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "unable to read file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error(err.Error())
		return badRequest(c, "unable to read file")
	}

	ref, err := h.store.Upload(c.Context(), GetUserID(c), data)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ref)
}
