package catalog

// CapabilityStatement builds the CapabilityStatement-shaped resource
// describing every resource type and search parameter this catalog knows
// about. It backs both the Fiber-mounted GET /metadata route and the
// standalone read-only mirror in internal/transport/metamirror, so the two
// surfaces can never drift out of sync with each other.
func (c *Catalog) CapabilityStatement() map[string]any {
	resourceTypes := c.ResourceTypes()
	resources := make([]map[string]any, 0, len(resourceTypes))
	for _, rt := range resourceTypes {
		params := make([]map[string]any, 0)
		for _, p := range c.ParamsFor(rt) {
			params = append(params, map[string]any{
				"name": p.Name,
				"type": string(p.Type),
			})
		}
		resources = append(resources, map[string]any{
			"type":        rt,
			"interaction": []map[string]any{{"code": "read"}, {"code": "vread"}, {"code": "update"}, {"code": "patch"}, {"code": "delete"}, {"code": "create"}, {"code": "search-type"}, {"code": "history-instance"}, {"code": "history-type"}},
			"searchParam": params,
		})
	}
	return map[string]any{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"fhirVersion":  "4.0.1",
		"format":       []string{"json"},
		"rest": []map[string]any{{
			"mode":     "server",
			"resource": resources,
		}},
	}
}
