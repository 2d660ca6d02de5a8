package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vienlink/internal/middleware"
	"vienlink/internal/model"
	"vienlink/internal/request"
)

type createBloodRequest struct {
	HospitalID uuid.UUID `json:"hospital_id" validate:"required"`
	BloodGroup string    `json:"blood_group" validate:"required,blood_group"`
	Quantity   int       `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) CreateRequest(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	var body createBloodRequest
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

	req, err := h.requests.Create(c.Context(), request.CreateParams{
		HospitalID: body.HospitalID,
		Requester:  ident,
		BloodGroup: model.BloodGroup(body.BloodGroup),
		Quantity:   body.Quantity,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(201).JSON(req)
}

func (h *Handler) GetRequest(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request ID",
		})
	}

	req, err := h.requests.Get(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(req)
}

func (h *Handler) ApproveRequest(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request ID",
		})
	}

	req, err := h.requests.Approve(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	h.telemetry.RecordUnitsClaimed(c.Context(), string(req.BloodGroup), len(req.ReservedUnits))

	return c.JSON(req)
}

type rejectRequestBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectRequest(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request ID",
		})
	}

	var body rejectRequestBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	req, err := h.requests.Reject(c.Context(), ident, id, body.Reason)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(req)
}

func (h *Handler) FulfillRequest(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request ID",
		})
	}

	req, err := h.requests.Fulfill(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(req)
}

func (h *Handler) CancelRequest(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request ID",
		})
	}

	req, err := h.requests.Cancel(c.Context(), ident, id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(req)
}
