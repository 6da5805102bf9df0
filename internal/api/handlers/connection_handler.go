package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
)

type ConnectionHandler struct {
	s service.ConnectionService
}

func NewConnectionHandler(s service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{s: s}
}

func (h *ConnectionHandler) List(c *fiber.Ctx) error {
	conns, err := h.s.List(c.Context(), GetUserID(c), c.Query("platform"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(conns)
}

func (h *ConnectionHandler) SetPrimary(c *fiber.Ctx) error {
	if err := h.s.SetPrimary(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectionHandler) Delete(c *fiber.Ctx) error {
	if err := h.s.Delete(c.Context(), GetUserID(c), c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectionHandler) DeleteAll(c *fiber.Ctx) error {
	if err := h.s.DeleteAll(c.Context(), GetUserID(c)); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
