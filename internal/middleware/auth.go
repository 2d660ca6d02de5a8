package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vienlink/internal/model"
)

// IdentityKey is the fiber locals key the identity middleware stores the
// caller under.
const IdentityKey = "identity"

// Identity resolves the authenticated caller from the gateway-supplied
// headers. The gateway terminates authentication; these headers are trusted.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := uuid.Parse(c.Get("X-User-ID"))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{
				"error": "missing or invalid user identity",
			})
		}

		role := model.Role(c.Get("X-User-Role"))
		switch role {
		case model.RoleStaff, model.RoleHospitalAdmin, model.RoleSuperAdmin:
		default:
			return c.Status(401).JSON(fiber.Map{
				"error": "missing or invalid role",
			})
		}

		ident := model.Identity{UserID: userID, Role: role}
		if raw := c.Get("X-Hospital-ID"); raw != "" {
			hospitalID, err := uuid.Parse(raw)
			if err != nil {
				return c.Status(400).JSON(fiber.Map{
					"error": "invalid hospital ID",
				})
			}
			ident.HospitalID = hospitalID
		}

		c.Locals(IdentityKey, ident)
		return c.Next()
	}
}

// CallerIdentity returns the identity stored by the Identity middleware.
func CallerIdentity(c *fiber.Ctx) model.Identity {
	ident, _ := c.Locals(IdentityKey).(model.Identity)
	return ident
}
