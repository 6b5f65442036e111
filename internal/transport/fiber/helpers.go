package fiber

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/middleware"
	"fhirstore/internal/operation"
	"fhirstore/internal/store"
)

// reqCtx returns c's request context carrying the authenticated actor (if
// any), for Engine calls that emit audit events.
func reqCtx(c *fiber.Ctx) context.Context {
	actor := ""
	if p := middleware.PrincipalFromContext(c); p != nil {
		actor = p.Subject
	}
	return operation.WithActor(c.Context(), actor)
}

// weakETag formats a version id as a weak ETag, the form FHIR servers use
// for resource versions.
func weakETag(versionID int64) string {
	return fmt.Sprintf(`W/"%d"`, versionID)
}

// parseIfMatch extracts the version id from an If-Match header, returning 0
// (no constraint) when the header is absent.
func parseIfMatch(c *fiber.Ctx) (int64, error) {
	h := c.Get("If-Match")
	if h == "" {
		return 0, nil
	}
	v := strings.Trim(strings.TrimPrefix(h, "W/"), `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-header", "If-Match must carry a numeric version")
	}
	return n, nil
}

// setResourceHeaders sets the ETag/Last-Modified/Location headers a
// resource response carries.
func setResourceHeaders(c *fiber.Ctx, res store.Resource) {
	c.Set("ETag", weakETag(res.VersionID))
	c.Set("Last-Modified", res.LastUpdated.UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"))
}

// preferReturn reads the Prefer header's return= value, defaulting to
// "representation".
func preferReturn(c *fiber.Ctx) string {
	h := c.Get("Prefer")
	for _, part := range strings.Split(h, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "return="); ok {
			return v
		}
	}
	return "representation"
}

// preferHandling reads the Prefer header's handling= value, defaulting to
// "strict".
func preferHandling(c *fiber.Ctx) string {
	h := c.Get("Prefer")
	for _, part := range strings.Split(h, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "handling="); ok {
			return v
		}
	}
	return "strict"
}

// writeResource renders res honoring the Prefer: return= header.
func writeResource(c *fiber.Ctx, status int, res store.Resource) error {
	setResourceHeaders(c, res)
	if preferReturn(c) == "minimal" {
		return c.SendStatus(status)
	}
	return c.Status(status).Send(res.Document)
}

func resourceLocation(c *fiber.Ctx, res store.Resource) string {
	return fmt.Sprintf("%s/%s/_history/%d", res.Type, res.ID, res.VersionID)
}
