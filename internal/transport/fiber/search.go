package fiber

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/search"
)

// Search handles GET /:type.
func (h *Handler) Search(c *fiber.Ctx) error {
	return h.runSearch(c, c.Params("type"), queryValues(c))
}

// SearchByPost handles POST /:type/_search, where the query is carried in
// the form-encoded body instead of the URL.
func (h *Handler) SearchByPost(c *fiber.Ctx) error {
	values, err := parseFormBody(c.Body())
	if err != nil {
		return err
	}
	return h.runSearch(c, c.Params("type"), values)
}

func (h *Handler) runSearch(c *fiber.Ctx, resourceType string, values map[string][]string) error {
	raw := toURLValues(values)
	q, result, err := h.Compiler.Search(reqCtx(c), resourceType, raw, search.Lenient)
	if err != nil {
		return err
	}

	resources := result.Resources
	if len(q.Includes) > 0 || len(q.RevIncludes) > 0 {
		hydrated, err := h.Compiler.Hydrate(reqCtx(c), q, resources, h.Engine.MaxChain)
		if err != nil {
			return err
		}
		resources = append(resources, hydrated...)
	}

	linkQuery := url.Values{}
	for k, v := range raw {
		if k != "_cursor" && k != "_count" {
			linkQuery[k] = v
		}
	}
	links := search.BundleLinks(c.BaseURL()+c.Path()+"?"+linkQuery.Encode(), q, result)
	return c.Status(fiber.StatusOK).JSON(searchBundle(resources, result.Total, links))
}
