package fiber

import (
	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/operation"
)

// SystemBundle handles POST / (the whole-system transaction/batch
// endpoint).
func (h *Handler) SystemBundle(c *fiber.Ctx) error {
	entries, bundleType, err := operation.ParseBundle(c.Body())
	if err != nil {
		return err
	}
	results, err := h.Engine.ProcessBundle(reqCtx(c), entries, bundleType, operation.NewServerID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(responseBundle(bundleType, results))
}

func responseBundle(bundleType string, results []operation.BundleEntryResult) map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		entry := map[string]any{
			"response": map[string]any{"status": statusText(r)},
		}
		if r.Err != nil {
			entry["response"].(map[string]any)["outcome"] = operationOutcome(issuesFor(r.Err))
		} else if !r.Deleted {
			entry["resource"] = rawJSON(r.Resource.Document)
			entry["response"].(map[string]any)["etag"] = weakETag(r.Resource.VersionID)
		}
		items = append(items, entry)
	}
	return map[string]any{
		"resourceType": "Bundle",
		"type":         bundleType + "-response",
		"entry":        items,
	}
}

func statusText(r operation.BundleEntryResult) string {
	if r.Err != nil {
		return "500 Internal Server Error"
	}
	if r.Status != "" {
		return r.Status
	}
	return "200 OK"
}

func issuesFor(err error) []fhirerr.Issue {
	var fe *fhirerr.Error
	if fhirerr.As(err, &fe) {
		return fe.Issues
	}
	return []fhirerr.Issue{{Severity: fhirerr.SeverityError, Code: "exception", Diagnostics: err.Error()}}
}
