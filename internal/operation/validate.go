package operation

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"fhirstore/internal/fhirerr"
)

// ValidationIssue is one finding from $validate, shaped like an
// OperationOutcome.issue entry.
type ValidationIssue = fhirerr.Issue

// Validate performs a shape-only check: valid JSON, a resourceType field
// present and matching the expected type (when one is given, e.g.
// validating against an instance's own type). It does not consult the
// parameter catalog and does not check against FHIR StructureDefinitions,
// required elements or cardinality constraints.
func (e *Engine) Validate(resourceType string, body json.RawMessage) []ValidationIssue {
	var issues []ValidationIssue

	if !gjson.ValidBytes(body) {
		return []ValidationIssue{{
			Severity:    fhirerr.SeverityFatal,
			Code:        "structure",
			Diagnostics: "request body is not valid JSON",
		}}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		issues = append(issues, ValidationIssue{
			Severity: fhirerr.SeverityFatal, Code: "structure",
			Diagnostics: "resource body must be a JSON object",
		})
		return issues
	}

	rt := root.Get("resourceType")
	if !rt.Exists() || rt.String() == "" {
		issues = append(issues, ValidationIssue{
			Severity: fhirerr.SeverityError, Code: "required",
			Diagnostics: "resourceType is required", Expression: []string{"resourceType"},
		})
	} else if resourceType != "" && rt.String() != resourceType {
		issues = append(issues, ValidationIssue{
			Severity: fhirerr.SeverityError, Code: "invalid",
			Diagnostics: fmt.Sprintf("resourceType %q does not match expected type %q", rt.String(), resourceType),
			Expression:  []string{"resourceType"},
		})
	}

	if len(issues) == 0 {
		issues = append(issues, ValidationIssue{
			Severity: fhirerr.SeverityInformation, Code: "informational",
			Diagnostics: "no issues detected",
		})
	}
	return issues
}
