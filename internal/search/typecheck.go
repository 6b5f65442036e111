package search

import (
	"fmt"

	"fhirstore/internal/catalog"
	"fhirstore/internal/fhirerr"
)

// Strictness controls how Typecheck responds to a parameter name the
// catalog doesn't recognize, per FHIR's Prefer: handling=strict|lenient.
type Strictness int

const (
	Lenient Strictness = iota
	Strict
)

// Typecheck resolves every clause in q against cat, attaching catalog
// entries are implicit (Lower re-resolves them) — Typecheck's job is purely
// to reject what the catalog and modifiers disallow. Unknown parameters are
// dropped (lenient) or rejected (strict) per FHIR's documented handling.
func Typecheck(cat *catalog.Catalog, q *Query, strictness Strictness) error {
	kept := q.Clauses[:0]
	for _, c := range q.Clauses {
		entry, err := resolveClause(cat, q.ResourceType, c)
		if err != nil {
			if strictness == Strict {
				return err
			}
			continue
		}
		if c.Modifier != "" && !entry.HasModifier(c.Modifier) {
			if strictness == Strict {
				return fhirerr.New(fhirerr.KindMalformedRequest, "unsupported-modifier",
					fmt.Sprintf("parameter %q does not support modifier :%s", c.Param, c.Modifier))
			}
			continue
		}
		kept = append(kept, c)
	}
	q.Clauses = kept

	for _, inc := range q.Includes {
		if _, ok := cat.Lookup(inc.SourceType, inc.RefParam); !ok {
			if strictness == Strict {
				return fhirerr.New(fhirerr.KindMalformedRequest, "unsupported-include",
					fmt.Sprintf("%s has no reference parameter %q", inc.SourceType, inc.RefParam))
			}
		}
	}
	return nil
}

// resolveClause looks up the catalog entry a clause's leaf parameter name
// refers to, following the clause's resource type (q.ResourceType for a
// plain clause, the final chain hop's target type for a forward chain, or
// the _has type for a reverse chain).
func resolveClause(cat *catalog.Catalog, resourceType string, c Clause) (catalog.ParamEntry, error) {
	if c.HasMod {
		return resolveHas(cat, c.Has)
	}

	rt := resourceType
	for _, hop := range c.Chain {
		refEntry, ok := cat.Lookup(rt, hop.RefParam)
		if !ok || refEntry.Type != catalog.TypeReference {
			return catalog.ParamEntry{}, fhirerr.New(fhirerr.KindMalformedRequest, "unknown-parameter",
				fmt.Sprintf("%s has no reference parameter %q", rt, hop.RefParam))
		}
		rt = chainTargetType(hop, refEntry)
	}

	entry, ok := cat.Lookup(rt, c.Param)
	if !ok {
		return catalog.ParamEntry{}, fhirerr.New(fhirerr.KindMalformedRequest, "unknown-parameter",
			fmt.Sprintf("%s has no search parameter %q", rt, c.Param))
	}
	return entry, nil
}

func resolveHas(cat *catalog.Catalog, h *HasClause) (catalog.ParamEntry, error) {
	if h.Inner.HasMod {
		return resolveHas(cat, h.Inner.Has)
	}
	refEntry, ok := cat.Lookup(h.Type, h.RefParam)
	if !ok || refEntry.Type != catalog.TypeReference {
		return catalog.ParamEntry{}, fhirerr.New(fhirerr.KindMalformedRequest, "unknown-parameter",
			fmt.Sprintf("%s has no reference parameter %q", h.Type, h.RefParam))
	}
	entry, ok := cat.Lookup(h.Type, h.Inner.Param)
	if !ok {
		return catalog.ParamEntry{}, fhirerr.New(fhirerr.KindMalformedRequest, "unknown-parameter",
			fmt.Sprintf("%s has no search parameter %q", h.Type, h.Inner.Param))
	}
	return entry, nil
}

// chainTargetType picks the resource type a chain hop continues into: the
// explicit ":Patient" restriction if given, else the reference parameter's
// sole declared target type, else the first of several (an ambiguous chain
// without a type restriction resolves against the first candidate — callers
// wanting precision should supply the restriction).
func chainTargetType(hop ChainHop, refEntry catalog.ParamEntry) string {
	if hop.TargetType != "" {
		return hop.TargetType
	}
	if len(refEntry.TargetTypes) > 0 {
		return refEntry.TargetTypes[0]
	}
	return ""
}
