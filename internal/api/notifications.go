package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vienlink/internal/middleware"
)

func (h *Handler) ListNotifications(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	onlyUnread := c.QueryBool("unread")
	list, err := h.notifier.List(c.Context(), ident.UserID, onlyUnread)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": list,
	})
}

func (h *Handler) CountUnreadNotifications(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	count, err := h.notifier.CountUnread(c.Context(), ident.UserID)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"count": count,
	})
}

type notificationIDsBody struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

func (h *Handler) MarkNotificationsRead(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	var body notificationIDsBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validate.Validate(body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.notifier.MarkRead(c.Context(), ident.UserID, body.IDs...); err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

func (h *Handler) MarkAllNotificationsRead(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	if err := h.notifier.MarkAllRead(c.Context(), ident.UserID); err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

func (h *Handler) DeleteNotifications(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	var body notificationIDsBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := h.validate.Validate(body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.notifier.Delete(c.Context(), ident.UserID, body.IDs...); err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "ok",
	})
}
