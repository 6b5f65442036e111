package fiber

import (
	"time"

	"github.com/tidwall/gjson"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/store"
)

var zeroTime time.Time

// historyBundle renders a history/type-history result as a FHIR history
// Bundle.
func historyBundle(entries []store.HistoryEntry) map[string]any {
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		entry := map[string]any{
			"fullUrl": e.Resource.Type + "/" + e.Resource.ID,
			"request": map[string]any{
				"method": e.Method,
				"url":    e.URL,
			},
			"response": map[string]any{
				"status":       statusCodeFor(e.Method),
				"etag":         weakETag(e.Resource.VersionID),
				"lastModified": e.Resource.LastUpdated.UTC().Format(time.RFC3339),
			},
		}
		if e.Method != "DELETE" {
			entry["resource"] = rawJSON(e.Resource.Document)
		}
		items = append(items, entry)
	}
	return map[string]any{
		"resourceType": "Bundle",
		"type":         "history",
		"total":        len(entries),
		"entry":        items,
	}
}

func statusCodeFor(method string) string {
	switch method {
	case "POST":
		return "201"
	case "DELETE":
		return "204"
	default:
		return "200"
	}
}

// searchBundle renders a search result page as a FHIR searchset Bundle.
func searchBundle(resources []store.Resource, total int, links map[string]string) map[string]any {
	items := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		items = append(items, map[string]any{
			"fullUrl":  r.Type + "/" + r.ID,
			"resource": rawJSON(r.Document),
			"search":   map[string]any{"mode": "match"},
		})
	}
	linkEntries := make([]map[string]any, 0, len(links))
	for relation, url := range links {
		linkEntries = append(linkEntries, map[string]any{"relation": relation, "url": url})
	}
	b := map[string]any{
		"resourceType": "Bundle",
		"type":         "searchset",
		"entry":        items,
		"link":         linkEntries,
	}
	if total >= 0 {
		b["total"] = total
	}
	return b
}

// rawJSON lets a json.RawMessage document be embedded verbatim inside the
// response map instead of being re-marshaled (and thus re-escaped).
func rawJSON(doc []byte) any {
	if len(doc) == 0 {
		return nil
	}
	return gjson.ParseBytes(doc).Value()
}

// operationOutcome renders a set of issues as an OperationOutcome body,
// used both for top-level error responses and for per-entry outcomes
// nested inside a batch/transaction response Bundle.
func operationOutcome(issues []fhirerr.Issue) map[string]any {
	out := make([]map[string]any, 0, len(issues))
	for _, i := range issues {
		entry := map[string]any{
			"severity": string(i.Severity),
			"code":     i.Code,
		}
		if i.Diagnostics != "" {
			entry["diagnostics"] = i.Diagnostics
		}
		if len(i.Expression) > 0 {
			entry["expression"] = i.Expression
		}
		if len(i.Location) > 0 {
			entry["location"] = i.Location
		}
		out = append(out, entry)
	}
	return map[string]any{
		"resourceType": "OperationOutcome",
		"issue":        out,
	}
}
