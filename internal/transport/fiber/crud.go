package fiber

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/operation"
)

// Create handles POST /:type, including the conditional-create variant
// (If-None-Exist header).
func (h *Handler) Create(c *fiber.Ctx) error {
	resourceType := c.Params("type")
	body := c.Body()

	if query := c.Get("If-None-Exist"); query != "" {
		res, created, err := h.Engine.ConditionalCreate(reqCtx(c), resourceType, body, query, operation.NewServerID)
		if err != nil {
			return err
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
			c.Set("Location", resourceLocation(c, res))
		}
		return writeResource(c, status, res)
	}

	res, err := h.Engine.CreateResource(reqCtx(c), resourceType, body, operation.NewServerID)
	if err != nil {
		return err
	}
	c.Set("Location", resourceLocation(c, res))
	return writeResource(c, fiber.StatusCreated, res)
}

// Read handles GET /:type/:id.
func (h *Handler) Read(c *fiber.Ctx) error {
	res, err := h.Engine.ReadResource(reqCtx(c), c.Params("type"), c.Params("id"))
	if err != nil {
		return err
	}
	return writeResource(c, fiber.StatusOK, res)
}

// VRead handles GET /:type/:id/_history/:vid.
func (h *Handler) VRead(c *fiber.Ctx) error {
	vid, err := strconv.ParseInt(c.Params("vid"), 10, 64)
	if err != nil {
		return fhirerr.New(fhirerr.KindMalformedRequest, "invalid-version", "version id must be numeric")
	}
	res, err := h.Engine.VReadResource(reqCtx(c), c.Params("type"), c.Params("id"), vid)
	if err != nil {
		return err
	}
	return writeResource(c, fiber.StatusOK, res)
}

// Update handles PUT /:type/:id.
func (h *Handler) Update(c *fiber.Ctx) error {
	ifMatch, err := parseIfMatch(c)
	if err != nil {
		return err
	}
	res, err := h.Engine.UpdateResource(reqCtx(c), c.Params("type"), c.Params("id"), c.Body(), ifMatch)
	if err != nil {
		return err
	}
	return writeResource(c, fiber.StatusOK, res)
}

// Patch handles PATCH /:type/:id (JSON merge-patch body).
func (h *Handler) Patch(c *fiber.Ctx) error {
	ifMatch, err := parseIfMatch(c)
	if err != nil {
		return err
	}
	res, err := h.Engine.PatchResource(reqCtx(c), c.Params("type"), c.Params("id"), c.Body(), ifMatch)
	if err != nil {
		return err
	}
	return writeResource(c, fiber.StatusOK, res)
}

// Delete handles DELETE /:type/:id, including the conditional-delete
// variant when the request carries a search query string.
func (h *Handler) Delete(c *fiber.Ctx) error {
	resourceType := c.Params("type")
	if c.Params("id") == "" && len(c.Request().URI().QueryString()) > 0 {
		return h.conditionalDelete(c, resourceType)
	}
	if err := h.Engine.DeleteResource(reqCtx(c), resourceType, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) conditionalDelete(c *fiber.Ctx, resourceType string) error {
	handling := operation.ConditionalDeleteStrict
	if preferHandling(c) == "lenient" {
		handling = operation.ConditionalDeleteLenient
	}
	n, err := h.Engine.ConditionalDelete(reqCtx(c), resourceType, string(c.Request().URI().QueryString()), handling)
	if err != nil {
		return err
	}
	if n == 0 {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// History handles GET /:type/:id/_history.
func (h *Handler) History(c *fiber.Ctx) error {
	entries, err := h.Engine.History(reqCtx(c), c.Params("type"), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(historyBundle(entries))
}

// TypeHistory handles GET /:type/_history.
func (h *Handler) TypeHistory(c *fiber.Ctx) error {
	entries, err := h.Engine.TypeHistory(reqCtx(c), c.Params("type"), zeroTime)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(historyBundle(entries))
}
