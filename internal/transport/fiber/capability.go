package fiber

import (
	"github.com/gofiber/fiber/v2"
)

// CapabilityStatement handles GET /metadata: a minimal self-description
// listing the resource types the catalog knows search parameters for.
func (h *Handler) CapabilityStatement(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.Catalog.CapabilityStatement())
}
