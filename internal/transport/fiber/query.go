package fiber

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"fhirstore/internal/fhirerr"
)

// queryValues collects a fiber request's query string into the
// map[string][]string shape url.Values uses, preserving repeated keys
// (FHIR search allows a parameter to repeat, meaning AND across values).
func queryValues(c *fiber.Ctx) map[string][]string {
	out := map[string][]string{}
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		out[k] = append(out[k], string(value))
	})
	return out
}

// parseFormBody parses an application/x-www-form-urlencoded body the same
// way GET's query string is parsed, for POST .../_search.
func parseFormBody(body []byte) (map[string][]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-body", "search form body could not be parsed")
	}
	return map[string][]string(values), nil
}

func toURLValues(m map[string][]string) url.Values {
	return url.Values(m)
}
