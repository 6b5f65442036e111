package fiber

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/fhirerr"
)

// Everything handles GET /Patient/:id/$everything.
func (h *Handler) Everything(c *fiber.Ctx) error {
	if c.Params("type") != "Patient" {
		return fhirerr.New(fhirerr.KindUnsupported, "not-supported", "$everything is only defined for Patient")
	}
	var restrict []string
	if types := c.Query("_type"); types != "" {
		restrict = strings.Split(types, ",")
	}
	resources, err := h.Engine.Everything(reqCtx(c), c.Params("id"), restrict)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(searchBundle(resources, len(resources), nil))
}

// GetMeta handles GET /:type/:id/$meta.
func (h *Handler) GetMeta(c *fiber.Ctx) error {
	meta, err := h.Engine.GetMeta(reqCtx(c), c.Params("type"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).Send(meta)
}

// AddMeta handles POST /:type/:id/$meta-add.
func (h *Handler) AddMeta(c *fiber.Ctx) error {
	res, err := h.Engine.AddMeta(reqCtx(c), c.Params("type"), c.Params("id"), c.Body())
	if err != nil {
		return err
	}
	return writeResource(c, fiber.StatusOK, res)
}

// DeleteMeta handles POST /:type/:id/$meta-delete.
func (h *Handler) DeleteMeta(c *fiber.Ctx) error {
	res, err := h.Engine.DeleteMeta(reqCtx(c), c.Params("type"), c.Params("id"), c.Body())
	if err != nil {
		return err
	}
	return writeResource(c, fiber.StatusOK, res)
}

// ValidateNew handles POST /:type/$validate.
func (h *Handler) ValidateNew(c *fiber.Ctx) error {
	return h.renderValidation(c, c.Params("type"))
}

// ValidateExisting handles POST /:type/:id/$validate.
func (h *Handler) ValidateExisting(c *fiber.Ctx) error {
	return h.renderValidation(c, c.Params("type"))
}

func (h *Handler) renderValidation(c *fiber.Ctx, resourceType string) error {
	issues := h.Engine.Validate(resourceType, c.Body())
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"resourceType": "OperationOutcome",
		"issue":        issues,
	})
}
