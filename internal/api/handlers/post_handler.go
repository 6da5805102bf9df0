package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type PostHandler struct {
	s service.PublishService
}

func NewPostHandler(s service.PublishService) *PostHandler {
	return &PostHandler{s: s}
}

func (h *PostHandler) Publish(c *fiber.Ctx) error {
	var req transfer.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	post := &models.Post{
		UserID:      GetUserID(c),
		Content:     req.Content,
		Title:       req.Title,
		Hashtags:    req.Hashtags,
		Media:       req.Media,
		Variants:    req.Variants,
		ScheduledAt: req.ScheduledAt,
	}

	submission, err := h.s.Submit(c.Context(), post, req.Targets)
	if err != nil {
		return errorResponse(c, err)
	}

	if submission.ScheduledAt != nil {
		return c.Status(fiber.StatusAccepted).JSON(submission)
	}
	return c.Status(fiber.StatusOK).JSON(submission)
}

func (h *PostHandler) Results(c *fiber.Ctx) error {
	results, err := h.s.Results(c.Context(), GetUserID(c), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(results)
}
