package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"vienlink/internal/model"
)

// MatchDonors finds eligible donors of a blood group near a point, closest
// first.
func (h *Handler) MatchDonors(c *fiber.Ctx) error {
	group := model.BloodGroup(c.Query("blood_group"))
	if !group.Valid() {
		return c.Status(400).JSON(fiber.Map{
			"error": "missing or invalid blood group",
		})
	}

	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "missing or invalid latitude",
		})
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "missing or invalid longitude",
		})
	}

	radiusKm := h.donorRadiusKm
	if raw := c.Query("radius_km"); raw != "" {
		radiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{
				"error": "invalid radius",
			})
		}
	}

	matches, err := h.matcher.FindNearby(c.Context(), group, lat, lon, radiusKm)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"matches": matches,
	})
}
