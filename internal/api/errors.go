package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vienlink/internal/model"
)

// respondError maps domain errors onto HTTP status codes. Scope violations
// surface as 404 upstream so nothing here distinguishes them from absence.
func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	var stockErr *model.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return c.Status(409).JSON(fiber.Map{
			"error":     "insufficient stock",
			"available": stockErr.Available,
			"required":  stockErr.Required,
		})
	case errors.Is(err, model.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{
			"error": "not found",
		})
	case errors.Is(err, model.ErrInvalidInput):
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrInvalidTransition):
		return c.Status(409).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		h.logger.ErrorContext(c.Context(), "Request failed", "error", err)
		return c.Status(500).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}

func idParam(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}
