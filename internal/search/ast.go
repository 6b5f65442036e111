// Package search parses a FHIR search query string into an AST,
// typechecks each parameter against the parameter catalog, lowers it into
// SQL run against the resource store's index tables, and hydrates results
// with _include/_revinclude.
package search

import "fhirstore/internal/catalog"

// Prefix is a FHIR search comparison prefix (eq, ne, gt, ...). The zero
// value (the empty string) marks an unprefixed value, which Lower compares
// the same way as PrefixEq.
type Prefix string

const (
	PrefixEq Prefix = "eq"
	PrefixNe Prefix = "ne"
	PrefixGt Prefix = "gt"
	PrefixLt Prefix = "lt"
	PrefixGe Prefix = "ge"
	PrefixLe Prefix = "le"
	PrefixSa Prefix = "sa"
	PrefixEb Prefix = "eb"
	PrefixAp Prefix = "ap"
)

// Value is one comma-joined (OR'd) operand within a single parameter
// clause, already split into its prefix and raw remainder.
type Value struct {
	Prefix Prefix
	Raw    string // the value text after the prefix, e.g. "http://loinc.org|1234-5"
}

// Clause is one query-string key=value pair, fully parsed: its parameter
// name, optional modifier, optional reference chain, optional _has
// reverse-chain, and its OR'd values.
type Clause struct {
	Param    string // the leaf parameter name being matched
	Modifier catalog.Modifier
	HasMod   bool

	// Chain holds forward-chain hops, e.g. "subject:Patient.name=Smith" ->
	// Chain = [{RefParam: "subject", TargetType: "Patient"}], Param = "name".
	Chain []ChainHop

	// Has holds the reverse-chain (_has) description when this clause came
	// from a "_has:Type:refParam:param=value" key.
	Has *HasClause

	Values []Value
}

// ChainHop is one ".".separated hop in a forward chain.
type ChainHop struct {
	RefParam   string // the reference search parameter traversed, e.g. "subject"
	TargetType string // optional explicit type constraint, e.g. "Patient"
}

// HasClause describes one level of "_has:Type:refParam:param=value".
// Nested _has (chained reverse lookups) nests another HasClause inside
// Inner.
type HasClause struct {
	Type     string
	RefParam string
	Inner    *Clause
}

// Query is a fully parsed search request against one resource type.
type Query struct {
	ResourceType string
	Clauses      []Clause

	Includes    []IncludeSpec
	RevIncludes []IncludeSpec

	Count  int
	Cursor string

	// TotalMode selects whether the result carries an exact Bundle.total.
	// Defaults to omitting it unless the request asks for one.
	TotalMode TotalMode

	Sort []SortSpec
}

// TotalMode controls whether an exact match count is computed.
type TotalMode string

const (
	TotalNone     TotalMode = "none"
	TotalEstimate TotalMode = "estimate"
	TotalAccurate TotalMode = "accurate"
)

// IncludeSpec is one _include or _revinclude directive.
type IncludeSpec struct {
	SourceType string // resource type the reference lives on
	RefParam   string // the reference search parameter, e.g. "subject"
	TargetType string // ":TargetType" restriction, empty if unrestricted
	Iterate    bool
}

// SortSpec is one _sort key, Desc true when prefixed with "-".
type SortSpec struct {
	Param string
	Desc  bool
}
