package search

import (
	"net/url"
	"strconv"
	"strings"

	"fhirstore/internal/catalog"
	"fhirstore/internal/fhirerr"
)

// Parse turns a raw query string (already split into key -> values, as
// url.Values gives you) into a Query AST for resourceType. It only does
// syntax: splitting modifiers, chains, and _has nesting. Semantic
// validation against the catalog happens in Typecheck.
func Parse(resourceType string, raw url.Values) (*Query, error) {
	q := &Query{ResourceType: resourceType, Count: 50, TotalMode: TotalNone}

	for key, values := range raw {
		base, iterate := splitIterate(key)

		switch {
		case base == "_count":
			n, err := strconv.Atoi(first(values))
			if err != nil || n < 0 {
				return nil, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-count", "_count must be a non-negative integer")
			}
			q.Count = n
		case base == "_cursor":
			q.Cursor = first(values)
		case base == "_total":
			switch first(values) {
			case "accurate":
				q.TotalMode = TotalAccurate
			case "estimate":
				q.TotalMode = TotalEstimate
			case "none", "":
				q.TotalMode = TotalNone
			default:
				return nil, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-total", "_total must be none, estimate, or accurate")
			}
		case base == "_sort":
			for _, part := range strings.Split(first(values), ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				desc := strings.HasPrefix(part, "-")
				q.Sort = append(q.Sort, SortSpec{Param: strings.TrimPrefix(part, "-"), Desc: desc})
			}
		case base == "_include":
			for _, v := range values {
				spec, err := parseIncludeValue(v, iterate)
				if err != nil {
					return nil, err
				}
				q.Includes = append(q.Includes, spec)
			}
		case base == "_revinclude":
			for _, v := range values {
				spec, err := parseIncludeValue(v, iterate)
				if err != nil {
					return nil, err
				}
				q.RevIncludes = append(q.RevIncludes, spec)
			}
		default:
			clause, err := parseClauseKey(key, values)
			if err != nil {
				return nil, err
			}
			q.Clauses = append(q.Clauses, clause)
		}
	}
	return q, nil
}

func splitIterate(key string) (base string, iterate bool) {
	if strings.HasSuffix(key, ":iterate") {
		return strings.TrimSuffix(key, ":iterate"), true
	}
	if strings.HasSuffix(key, ":recurse") {
		return strings.TrimSuffix(key, ":recurse"), true
	}
	return key, false
}

func parseIncludeValue(v string, iterate bool) (IncludeSpec, error) {
	parts := strings.Split(v, ":")
	if len(parts) < 2 {
		return IncludeSpec{}, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-include",
			"_include/_revinclude value must be SourceType:refParam[:TargetType]")
	}
	spec := IncludeSpec{SourceType: parts[0], RefParam: parts[1], Iterate: iterate}
	if len(parts) >= 3 {
		spec.TargetType = parts[2]
	}
	return spec, nil
}

// parseClauseKey parses one "key" into a Clause, where key is everything
// before "=" in the query string: a parameter name, optionally with a
// ":modifier" suffix, a chain ("subject:Patient.name" or "subject.name"),
// or a reverse-chain ("_has:Type:refParam:param").
func parseClauseKey(key string, rawValues []string) (Clause, error) {
	if strings.HasPrefix(key, "_has:") {
		return parseHasKey(key, rawValues)
	}

	segments := strings.Split(key, ".")
	var chain []ChainHop
	for _, seg := range segments[:len(segments)-1] {
		refParam, targetType := splitModifierOrType(seg)
		chain = append(chain, ChainHop{RefParam: refParam, TargetType: targetType})
	}

	leaf := segments[len(segments)-1]
	name, modPart := splitColon(leaf)
	var modifier catalog.Modifier
	if modPart != "" {
		modifier = catalog.Modifier(modPart)
	}

	values, err := parseValues(rawValues)
	if err != nil {
		return Clause{}, err
	}

	return Clause{Param: name, Modifier: modifier, Chain: chain, Values: values}, nil
}

// splitModifierOrType splits a chain hop of the form "subject:Patient" into
// (refParam="subject", targetType="Patient"), or returns ("subject", "") if
// there is no explicit type restriction.
func splitModifierOrType(seg string) (refParam, targetType string) {
	name, rest := splitColon(seg)
	return name, rest
}

func splitColon(s string) (name, rest string) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

// parseHasKey parses "_has:Observation:subject:code" possibly with a
// further nested "_has:..." on the right, or a trailing modifier like
// "_has:Observation:subject:code:text".
func parseHasKey(key string, rawValues []string) (Clause, error) {
	rest := strings.TrimPrefix(key, "_has:")
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 3 {
		return Clause{}, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-has",
			"_has must be of the form _has:Type:refParam:param")
	}
	hasType, refParam, remainder := parts[0], parts[1], parts[2]

	if strings.HasPrefix(remainder, "_has:") {
		inner, err := parseHasKey(remainder, rawValues)
		if err != nil {
			return Clause{}, err
		}
		return Clause{HasMod: true, Has: &HasClause{Type: hasType, RefParam: refParam, Inner: &inner}}, nil
	}

	name, modPart := splitColon(remainder)
	var modifier catalog.Modifier
	if modPart != "" {
		modifier = catalog.Modifier(modPart)
	}
	values, err := parseValues(rawValues)
	if err != nil {
		return Clause{}, err
	}
	leaf := Clause{Param: name, Modifier: modifier, Values: values}
	return Clause{HasMod: true, Has: &HasClause{Type: hasType, RefParam: refParam, Inner: &leaf}}, nil
}

// parseValues splits every raw value on "," (OR) and each operand's
// optional two-letter comparison prefix.
func parseValues(rawValues []string) ([]Value, error) {
	var out []Value
	for _, raw := range rawValues {
		for _, operand := range splitUnescapedComma(raw) {
			out = append(out, parseOneValue(operand))
		}
	}
	return out, nil
}

// splitUnescapedComma splits on "," that isn't preceded by a backslash, per
// FHIR search's escaping rule for commas within a single value.
func splitUnescapedComma(s string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == ',' {
			cur.WriteByte(',')
			i++
			continue
		}
		if s[i] == ',' {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	out = append(out, cur.String())
	return out
}

var knownPrefixes = []Prefix{PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb, PrefixAp}

// parseOneValue strips a recognized two-letter comparison prefix when the
// character after it is a digit, '-' or '.', the way a prefixed date,
// number or quantity operand starts. A value that merely begins with one of
// these letter pairs followed by a letter (a code of "eqx123", a family
// name of "lee") keeps its full text and the zero Prefix, which Lower
// compares as eq. A letter pair followed by a digit (e.g. a code of
// "ge123") is still split into a prefix and a remainder.
func parseOneValue(s string) Value {
	for _, p := range knownPrefixes {
		if strings.HasPrefix(s, string(p)) && len(s) > len(p) && strings.IndexByte("0123456789-.", s[len(p)]) >= 0 {
			return Value{Prefix: p, Raw: s[len(p):]}
		}
	}
	return Value{Raw: s}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
