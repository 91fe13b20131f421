package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/postline/postline/internal/service"
	"github.com/postline/postline/internal/transfer"
)

type SourceHandler struct {
	s service.SourceService
}

func NewSourceHandler(service service.SourceService) *SourceHandler {
	return &SourceHandler{s: service}
}

func (h *SourceHandler) AddSource(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var sc transfer.SourceCreation
	if err := c.BodyParser(&sc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	sourceID, err := h.s.Add(c.Context(), userID, &sc)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":   "Source added successfully",
		"source_id": sourceID,
	})
}

func (h *SourceHandler) ListSources(c *fiber.Ctx) error {
	userID := GetUserID(c)

	sources, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list sources",
		})
	}

	return c.Status(fiber.StatusOK).JSON(sources)
}

func (h *SourceHandler) RemoveSource(c *fiber.Ctx) error {
	userID := GetUserID(c)
	sourceID := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), userID, int64(sourceID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove source",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
