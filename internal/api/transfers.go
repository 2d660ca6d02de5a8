package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vienlink/internal/middleware"
	"vienlink/internal/model"
	"vienlink/internal/request"
)

type createTransferBody struct {
	FromHospitalID uuid.UUID `json:"from_hospital_id" validate:"required"`
	ToHospitalID   uuid.UUID `json:"to_hospital_id" validate:"required"`
	BloodGroup     string    `json:"blood_group" validate:"required,blood_group"`
	Quantity       int       `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) CreateTransfer(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	var body createTransferBody
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

	tr, err := h.requests.CreateTransfer(c.Context(), request.CreateTransferParams{
		FromHospitalID: body.FromHospitalID,
		ToHospitalID:   body.ToHospitalID,
		Requester:      ident,
		BloodGroup:     model.BloodGroup(body.BloodGroup),
		Quantity:       body.Quantity,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(201).JSON(tr)
}

func (h *Handler) GetTransfer(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid transfer ID",
		})
	}

	tr, err := h.requests.GetTransfer(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(tr)
}

func (h *Handler) ApproveTransfer(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid transfer ID",
		})
	}

	tr, err := h.requests.ApproveTransfer(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(tr)
}

func (h *Handler) RejectTransfer(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid transfer ID",
		})
	}

	tr, err := h.requests.RejectTransfer(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(tr)
}

func (h *Handler) CompleteTransfer(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid transfer ID",
		})
	}

	tr, err := h.requests.CompleteTransfer(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(tr)
}
