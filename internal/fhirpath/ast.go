// Package fhirpath implements the small, closed path-expression DSL used to
// walk a FHIR JSON document: a dot-separated sequence of steps, each of
// which may implicitly iterate arrays, select a polymorphic value[x]
// variant, or apply a "where(resolve() is T)" reference type filter. It is
// pure and side-effect-free, and is shared by the index extractor and the
// search compiler's chain executor.
//
// This is not full FHIRPath: only the subset of step forms the search
// parameter catalog actually uses are supported.
package fhirpath

import "strings"

// StepKind discriminates the three step forms the DSL supports.
type StepKind int

const (
	// StepField selects a plain named field, iterating if it is an array.
	StepField StepKind = iota
	// StepPolymorphic selects any field beginning with the given prefix
	// followed by an uppercase letter — FHIR's value[x] convention
	// (valueQuantity, valueCodeableConcept, ...).
	StepPolymorphic
	// StepWhereResolve restricts reference-shaped fragments (objects with a
	// "reference" string field) to those whose type prefix matches Type.
	StepWhereResolve
)

// Step is one segment of a parsed Path.
type Step struct {
	Kind   StepKind
	Field  string // for StepField and StepPolymorphic (the "value" prefix)
	Type   string // for StepWhereResolve ("Patient" in ".where(resolve() is Patient)")
}

// Path is a parsed path expression: an ordered sequence of Steps.
type Path struct {
	Expr  string
	Steps []Step
}

// Parse compiles a path expression string into a Path. Accepted forms per
// step, dot-separated:
//
//	name               -> StepField{Field: "name"}
//	value[x]           -> StepPolymorphic{Field: "value"}
//	reference.where(resolve() is Patient) is written as two dotted steps:
//	  "reference" then "where(resolve() is Patient)"
func Parse(expr string) Path {
	raw := strings.Split(expr, ".")
	steps := make([]Step, 0, len(raw))
	for _, seg := range raw {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		steps = append(steps, parseStep(seg))
	}
	return Path{Expr: expr, Steps: steps}
}

func parseStep(seg string) Step {
	if strings.HasPrefix(seg, "where(resolve() is ") && strings.HasSuffix(seg, ")") {
		t := strings.TrimSuffix(strings.TrimPrefix(seg, "where(resolve() is "), ")")
		return Step{Kind: StepWhereResolve, Type: strings.TrimSpace(t)}
	}
	if strings.HasSuffix(seg, "[x]") {
		return Step{Kind: StepPolymorphic, Field: strings.TrimSuffix(seg, "[x]")}
	}
	return Step{Kind: StepField, Field: seg}
}
