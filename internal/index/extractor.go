// Package index walks a stored resource's JSON through the paths the
// parameter catalog names for its resource type, converts each matching
// fragment into the typed value the parameter's declared type calls for,
// and hands the store a flat list of IndexRow values. Extraction is
// best-effort per parameter: a fragment that doesn't shape-match its
// declared type is skipped rather than failing the whole write, and a
// parameter whose paths matched fragments but yielded no rows at all is
// logged at debug level.
package index

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"fhirstore/internal/catalog"
	"fhirstore/internal/fhirpath"
	"fhirstore/internal/store"
)

// Extract produces every IndexRow for one resource document against cat's
// entries for resourceType (plus the common parameters every type shares).
func Extract(cat *catalog.Catalog, resourceType, resourceID string, doc []byte, log *slog.Logger) []store.IndexRow {
	if log == nil {
		log = slog.Default()
	}
	var rows []store.IndexRow
	for _, entry := range cat.ParamsFor(resourceType) {
		if entry.Type == catalog.TypeSpecial {
			for _, row := range ExtractGeoPair(entry, doc) {
				row.ResourceType = resourceType
				row.ResourceID = resourceID
				rows = append(rows, row)
			}
			continue
		}
		fragments := fhirpath.EvalAny(doc, entry.Paths)
		occ := 0
		for _, frag := range fragments {
			row, ok := extractOne(entry, frag)
			if !ok {
				continue
			}
			row.ResourceType = resourceType
			row.ResourceID = resourceID
			row.Param = entry.Name
			row.Occurrence = occ
			rows = append(rows, row)
			occ++

			if entry.Type == catalog.TypeDate {
				if endRow, ok := extractDateRangeEnd(entry, frag); ok {
					endRow.ResourceType = resourceType
					endRow.ResourceID = resourceID
					endRow.Param = entry.Name
					endRow.Occurrence = occ
					rows = append(rows, endRow)
					occ++
				}
			}
		}
		if len(fragments) == 0 {
			continue
		}
		if occ == 0 {
			log.Debug("index extraction produced no rows",
				"resourceType", resourceType, "resourceID", resourceID, "param", entry.Name)
		}
	}
	return rows
}

func extractOne(entry catalog.ParamEntry, frag fhirpath.Fragment) (store.IndexRow, bool) {
	switch entry.Type {
	case catalog.TypeToken:
		return extractToken(frag)
	case catalog.TypeString:
		return extractString(frag)
	case catalog.TypeDate:
		return extractDate(frag)
	case catalog.TypeReference:
		return extractReference(frag)
	case catalog.TypeQuantity:
		return extractQuantity(frag)
	case catalog.TypeNumber:
		return extractNumber(frag)
	case catalog.TypeURI:
		return extractURI(frag)
	default:
		return store.IndexRow{}, false
	}
}

func extractToken(frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	switch {
	case v.IsObject() && v.Get("coding").Exists():
		// CodeableConcept: index its first coding plus the display text.
		codings := v.Get("coding").Array()
		if len(codings) == 0 {
			return tokenRow("", "", strings.ToLower(v.Get("text").String())), v.Get("text").Exists()
		}
		c := codings[0]
		return tokenRow(c.Get("system").String(), c.Get("code").String(), strings.ToLower(v.Get("text").String())), true
	case v.IsObject() && (v.Get("system").Exists() || v.Get("code").Exists()):
		// Coding: system + code.
		return tokenRow(v.Get("system").String(), v.Get("code").String(), strings.ToLower(v.Get("display").String())), true
	case v.IsObject() && v.Get("value").Exists():
		// Identifier: system + value (FHIR overloads "value" as the code slot).
		return tokenRow(v.Get("system").String(), v.Get("value").String(), ""), true
	case v.Type == gjson.True || v.Type == gjson.False:
		return tokenRow("", v.String(), ""), true
	case v.Type == gjson.String:
		return tokenRow("", v.String(), strings.ToLower(v.String())), true
	default:
		return store.IndexRow{}, false
	}
}

func tokenRow(system, code, text string) store.IndexRow {
	return store.IndexRow{Kind: store.KindToken, Token: &store.TokenValue{System: system, Code: code, Text: text}}
}

func extractString(frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	var s string
	switch {
	case v.Type == gjson.String:
		s = v.String()
	case v.IsObject():
		// Address/HumanName-shaped fragments reached via a whole-object path;
		// fall back to joining the text field if present.
		if t := v.Get("text"); t.Exists() {
			s = t.String()
		} else {
			return store.IndexRow{}, false
		}
	default:
		return store.IndexRow{}, false
	}
	if s == "" {
		return store.IndexRow{}, false
	}
	return store.IndexRow{Kind: store.KindString, String: &store.StringValue{
		Normalized: strings.ToLower(s),
		Original:   s,
	}}, true
}

func extractDate(frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	if v.IsObject() {
		start := v.Get("start")
		if start.Exists() {
			instant, precision, ok := parseFHIRDate(start.String())
			if !ok {
				return store.IndexRow{}, false
			}
			return store.IndexRow{Kind: store.KindDate, Date: &store.DateValue{Instant: instant, Precision: precision}}, true
		}
		return store.IndexRow{}, false
	}
	if v.Type != gjson.String {
		return store.IndexRow{}, false
	}
	instant, precision, ok := parseFHIRDate(v.String())
	if !ok {
		return store.IndexRow{}, false
	}
	return store.IndexRow{Kind: store.KindDate, Date: &store.DateValue{Instant: instant, Precision: precision}}, true
}

// extractDateRangeEnd produces the second row for a Period fragment's "end"
// endpoint, enabling the sa/eb prefix semantics for range-valued
// parameters. Non-Period fragments yield nothing.
func extractDateRangeEnd(entry catalog.ParamEntry, frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	if !v.IsObject() {
		return store.IndexRow{}, false
	}
	end := v.Get("end")
	if !end.Exists() {
		return store.IndexRow{}, false
	}
	instant, precision, ok := parseFHIRDate(end.String())
	if !ok {
		return store.IndexRow{}, false
	}
	return store.IndexRow{Kind: store.KindDate, Date: &store.DateValue{Instant: instant, Precision: precision, IsRangeEnd: true}}, true
}

// parseFHIRDate accepts the FHIR date/dateTime/instant precisions: year,
// year-month, date, datetime-minute, and full second/sub-second instants.
func parseFHIRDate(s string) (time.Time, store.DatePrecision, bool) {
	layouts := []struct {
		layout    string
		precision store.DatePrecision
	}{
		{"2006-01-02T15:04:05.999999999Z07:00", store.PrecisionSecond},
		{"2006-01-02T15:04:05Z07:00", store.PrecisionSecond},
		{"2006-01-02T15:04Z07:00", store.PrecisionMinute},
		{"2006-01-02", store.PrecisionDay},
		{"2006-01", store.PrecisionMonth},
		{"2006", store.PrecisionYear},
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return t.UTC(), l.precision, true
		}
	}
	return time.Time{}, "", false
}

func extractReference(frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	ref := v
	if v.IsObject() {
		ref = v.Get("reference")
	}
	if ref.Type != gjson.String || ref.String() == "" {
		return store.IndexRow{}, false
	}
	raw := ref.String()

	if strings.HasPrefix(raw, "urn:uuid:") {
		return store.IndexRow{Kind: store.KindReference, Reference: &store.ReferenceValue{URN: raw}}, true
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		// Absolute URL: take the last two path segments as Type/id when shaped
		// that way, else index the whole URL as an opaque absolute reference.
		parts := strings.Split(strings.TrimSuffix(raw, "/"), "/")
		if len(parts) >= 2 {
			return store.IndexRow{Kind: store.KindReference, Reference: &store.ReferenceValue{
				TargetType: parts[len(parts)-2],
				TargetID:   parts[len(parts)-1],
				Absolute:   true,
			}}, true
		}
		return store.IndexRow{Kind: store.KindReference, Reference: &store.ReferenceValue{Absolute: true, TargetID: raw}}, true
	}
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return store.IndexRow{}, false
	}
	return store.IndexRow{Kind: store.KindReference, Reference: &store.ReferenceValue{
		TargetType: parts[0],
		TargetID:   parts[1],
	}}, true
}

func extractQuantity(frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	if !v.IsObject() {
		return store.IndexRow{}, false
	}
	val := v.Get("value")
	if !val.Exists() {
		return store.IndexRow{}, false
	}
	q := store.QuantityValue{
		Value:  val.Float(),
		System: v.Get("system").String(),
		Code:   v.Get("code").String(),
		Unit:   v.Get("unit").String(),
	}
	unit := q.Code
	if unit == "" {
		unit = q.Unit
	}
	if norm, dim, ok := toCanonical(q.Value, unit); ok {
		q.NormalizedValue = norm
		q.NormalizedDimension = dim
		q.HasNormalized = true
	}
	return store.IndexRow{Kind: store.KindQuantity, Quantity: &q}, true
}

func extractNumber(frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return store.IndexRow{}, false
		}
		f = parsed
	default:
		return store.IndexRow{}, false
	}
	return store.IndexRow{Kind: store.KindNumber, Number: &f}, true
}

func extractURI(frag fhirpath.Fragment) (store.IndexRow, bool) {
	v := frag.Value
	if v.Type != gjson.String || v.String() == "" {
		return store.IndexRow{}, false
	}
	s := v.String()
	return store.IndexRow{Kind: store.KindURI, URI: &s}, true
}

// ExtractGeoPair reads a "near"-shaped catalog entry's two paths directly
// (rather than through the generic per-fragment Extract loop, since a
// coordinate pair only makes sense evaluated together) and produces one Geo
// row per matching position object.
func ExtractGeoPair(entry catalog.ParamEntry, doc []byte) []store.IndexRow {
	if len(entry.Paths) != 2 {
		return nil
	}
	lats := fhirpath.Eval(doc, fhirpath.Parse(entry.Paths[0]))
	lons := fhirpath.Eval(doc, fhirpath.Parse(entry.Paths[1]))
	n := len(lats)
	if len(lons) < n {
		n = len(lons)
	}
	rows := make([]store.IndexRow, 0, n)
	for i := 0; i < n; i++ {
		if lats[i].Value.Type != gjson.Number || lons[i].Value.Type != gjson.Number {
			continue
		}
		rows = append(rows, store.IndexRow{
			Param:      entry.Name,
			Occurrence: i,
			Kind:       store.KindGeo,
			Geo:        &store.GeoValue{Latitude: lats[i].Value.Float(), Longitude: lons[i].Value.Float()},
		})
	}
	return rows
}
