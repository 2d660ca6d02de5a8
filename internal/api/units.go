package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vienlink/internal/inventory"
	"vienlink/internal/middleware"
	"vienlink/internal/model"
	"vienlink/internal/stock"
)

type createUnitRequest struct {
	DonorID        uuid.UUID `json:"donor_id" validate:"required"`
	HospitalID     uuid.UUID `json:"hospital_id" validate:"required"`
	BloodGroup     string    `json:"blood_group" validate:"required,blood_group"`
	CollectionDate time.Time `json:"collection_date" validate:"required"`
}

func (h *Handler) CreateUnit(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	var body createUnitRequest
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
	if !ident.CanAccess(body.HospitalID) {
		return c.Status(404).JSON(fiber.Map{
			"error": "not found",
		})
	}

	unit, err := h.units.CreateUnit(c.Context(), inventory.CreateUnitParams{
		DonorID:        body.DonorID,
		HospitalID:     body.HospitalID,
		BloodGroup:     model.BloodGroup(body.BloodGroup),
		CollectionDate: body.CollectionDate,
		Actor:          ident.UserID,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(201).JSON(unit)
}

func (h *Handler) GetUnit(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid unit ID",
		})
	}

	unit, err := h.units.GetUnit(c.Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	if !ident.CanAccess(unit.HospitalID) {
		return c.Status(404).JSON(fiber.Map{
			"error": "not found",
		})
	}

	return c.JSON(unit)
}

type recordResultRequest struct {
	Assay  string `json:"assay" validate:"required,assay"`
	Result string `json:"result" validate:"required,oneof=negative positive"`
}

func (h *Handler) RecordAssayResult(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid unit ID",
		})
	}

	var body recordResultRequest
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

	unit, err := h.units.GetUnit(c.Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	if !ident.CanAccess(unit.HospitalID) {
		return c.Status(404).JSON(fiber.Map{
			"error": "not found",
		})
	}

	unit, err = h.units.RecordAssayResult(c.Context(), ident.UserID, id, model.Assay(body.Assay), model.AssayResult(body.Result))
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(unit)
}

type recordMovementRequest struct {
	FromLocation string `json:"from_location"`
	ToLocation   string `json:"to_location" validate:"required"`
}

func (h *Handler) RecordMovement(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid unit ID",
		})
	}

	var body recordMovementRequest
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

	unit, err := h.units.GetUnit(c.Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	if !ident.CanAccess(unit.HospitalID) {
		return c.Status(404).JSON(fiber.Map{
			"error": "not found",
		})
	}

	mv, err := h.units.RecordMovement(c.Context(), inventory.RecordMovementParams{
		UnitID:       id,
		FromLocation: body.FromLocation,
		ToLocation:   body.ToLocation,
		Actor:        ident.UserID,
	})
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(201).JSON(mv)
}

func (h *Handler) ListMovements(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	id, err := idParam(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid unit ID",
		})
	}

	unit, err := h.units.GetUnit(c.Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	if !ident.CanAccess(unit.HospitalID) {
		return c.Status(404).JSON(fiber.Map{
			"error": "not found",
		})
	}

	movements, err := h.units.Movements(c.Context(), id)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"movements": movements,
	})
}

// StockLevels reports per-group available counts for one hospital, with each
// count classified against the hospital's thresholds.
func (h *Handler) StockLevels(c *fiber.Ctx) error {
	ident := middleware.CallerIdentity(c)

	hospitalID := ident.HospitalID
	if raw := c.Query("hospital_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{
				"error": "invalid hospital ID",
			})
		}
		hospitalID = id
	}
	if !ident.CanAccess(hospitalID) {
		return c.Status(404).JSON(fiber.Map{
			"error": "not found",
		})
	}

	hospital, err := h.repo.GetHospital(c.Context(), hospitalID)
	if err != nil {
		return h.respondError(c, err)
	}
	counts, err := h.units.CountAvailableByGroup(c.Context(), hospitalID)
	if err != nil {
		return h.respondError(c, err)
	}

	type groupLevel struct {
		Count int    `json:"count"`
		Level string `json:"level"`
	}
	levels := make(map[model.BloodGroup]groupLevel, len(model.BloodGroups))
	for _, group := range model.BloodGroups {
		threshold := hospital.Threshold(group, h.defaultThreshold)
		levels[group] = groupLevel{
			Count: counts[group],
			Level: stock.Classify(counts[group], threshold).String(),
		}
	}

	return c.JSON(fiber.Map{
		"hospital_id": hospitalID,
		"stock":       levels,
	})
}
