// Package store defines the persistence boundary that owns the canonical
// document table, the version-history table, and the derived typed index
// tables. The index extractor hands rows to the store; it never writes
// them itself. The search compiler only ever reads from the store.
package store

import (
	"encoding/json"
	"time"
)

// Resource is one version of a FHIR resource as the store sees it: the
// canonical, server-stamped JSON document plus its version metadata.
type Resource struct {
	Type        string
	ID          string
	VersionID   int64
	Deleted     bool
	LastUpdated time.Time
	Document    json.RawMessage
}

// ValueKind discriminates the typed-value variant an IndexRow carries: a
// discriminator column plus per-variant columns with NULLs, the usual
// fallback for languages (and SQL schemas) without native sum types.
type ValueKind string

const (
	KindToken     ValueKind = "token"
	KindString    ValueKind = "string"
	KindDate      ValueKind = "date"
	KindReference ValueKind = "reference"
	KindQuantity  ValueKind = "quantity"
	KindNumber    ValueKind = "number"
	KindURI       ValueKind = "uri"
	KindGeo       ValueKind = "geo"
)

// TokenValue is (system, code, text).
type TokenValue struct {
	System string
	Code   string
	Text   string // lowercased display, for :text
}

// StringValue is a normalized/original pair.
type StringValue struct {
	Normalized string // lowercased, for prefix/contains matching
	Original   string // for :exact
}

// DatePrecision names the precision a date fragment was parsed at.
type DatePrecision string

const (
	PrecisionYear   DatePrecision = "year"
	PrecisionMonth  DatePrecision = "month"
	PrecisionDay    DatePrecision = "day"
	PrecisionMinute DatePrecision = "minute"
	PrecisionSecond DatePrecision = "second"
)

// DateValue is a canonical UTC instant plus its original precision.
// IsRangeEnd is true for the second row of a Period (the end endpoint); the
// first row of a Period carries IsRangeEnd=false representing the start.
type DateValue struct {
	Instant   time.Time
	Precision DatePrecision
	IsRangeEnd bool // true when this row is a Period's "end", enabling sa/eb prefix semantics
}

// ReferenceValue is (target-type, target-id, absolute-url?).
// URN is set when the reference string is a urn:uuid:... rather than
// Type/id. Bundle processing rewrites the URNs its own entries define
// before indexing, so a URN row is persisted only for a urn:uuid reference
// that no entry of the same Bundle defines (or one sent outside a Bundle).
type ReferenceValue struct {
	TargetType string
	TargetID   string
	Absolute   bool
	URN        string
}

// QuantityValue carries the raw value/system/code/unit plus, when a UCUM
// conversion is known, a normalized magnitude comparable across units of
// the same dimension.
type QuantityValue struct {
	Value              float64
	System             string
	Code               string
	Unit               string
	NormalizedValue    float64
	NormalizedDimension string // e.g. "mass"; empty when not UCUM-normalizable
	HasNormalized      bool
}

// GeoValue is a (latitude, longitude) pair for the "near" special parameter.
type GeoValue struct {
	Latitude  float64
	Longitude float64
}

// IndexRow is one row per (resource, parameter-name, occurrence, typed
// value).
type IndexRow struct {
	ResourceType string
	ResourceID   string
	Param        string
	Occurrence   int
	Kind         ValueKind

	Token     *TokenValue
	String    *StringValue
	Date      *DateValue
	Reference *ReferenceValue
	Quantity  *QuantityValue
	Number    *float64
	URI       *string
	Geo       *GeoValue
}

// WriteSet is what the Index Extractor hands to the Store for one write:
// the canonical document plus every index row it produced. The Store
// commits both atomically: indexing is never partial.
type WriteSet struct {
	Document json.RawMessage
	Rows     []IndexRow
}

// HistoryEntry is one entry in a history response, carrying the version
// plus the synthesized REST verb/url a history Bundle entry needs.
type HistoryEntry struct {
	Resource Resource
	Method   string // "POST" | "PUT" | "DELETE"
	URL      string
}
