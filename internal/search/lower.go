package search

import (
	"fmt"
	"strings"

	"fhirstore/internal/catalog"
	"fhirstore/internal/repository/postgres"
)

// sqlBuilder accumulates a parameterized WHERE-clause fragment plus its
// positional args, letting each clause lowering function append without
// knowing the overall placeholder offset up front.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) push(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// lowerClause compiles one top-level Clause into a
// "resources.id IN (...)" SQL fragment scoped to the query's resource type.
func lowerClause(tables *postgres.TableNames, cat *catalog.Catalog, resourceType string, c Clause, b *sqlBuilder) (string, error) {
	var inner string
	var err error

	switch {
	case c.HasMod:
		inner, err = lowerHas(tables, cat, resourceType, c.Has, b)
	case len(c.Chain) > 0:
		inner, err = lowerChain(tables, cat, resourceType, c, b)
	default:
		entry, ok := cat.Lookup(resourceType, c.Param)
		if !ok {
			return "TRUE", nil // already filtered out at typecheck in lenient mode
		}
		inner, err = lowerLeaf(tables, entry, resourceType, c.Modifier, c.Values, b)
	}
	if err != nil {
		return "", err
	}
	if c.Modifier == catalog.ModNot {
		return fmt.Sprintf("id NOT IN (%s)", inner), nil
	}
	return fmt.Sprintf("id IN (%s)", inner), nil
}

// lowerLeaf builds the "SELECT id FROM index_X WHERE ..." subquery for one
// parameter, independent of whether it is reached directly, via a forward
// chain, or via _has.
func lowerLeaf(tables *postgres.TableNames, entry catalog.ParamEntry, resourceType string, mod catalog.Modifier, values []Value, b *sqlBuilder) (string, error) {
	if mod == catalog.ModMissing {
		return lowerMissing(tables, entry, resourceType, values, b)
	}

	table, predicate, err := valuePredicate(tables, entry, mod, values, b)
	if err != nil {
		return "", err
	}
	rtArg := b.push(resourceType)
	paramArg := b.push(entry.Name)
	return fmt.Sprintf(`SELECT id FROM %s WHERE resource_type=%s AND param=%s AND (%s)`,
		table, rtArg, paramArg, predicate), nil
}

func lowerMissing(tables *postgres.TableNames, entry catalog.ParamEntry, resourceType string, values []Value, b *sqlBuilder) (string, error) {
	table := indexTableFor(tables, entry.Type)
	rtArg := b.push(resourceType)
	paramArg := b.push(entry.Name)
	want := len(values) > 0 && (values[0].Raw == "true")
	sub := fmt.Sprintf(`SELECT id FROM %s WHERE resource_type=%s AND param=%s`, table, rtArg, paramArg)
	if want {
		// :missing=true -> resources NOT present in the index table.
		return fmt.Sprintf(`SELECT id FROM %s parent_ids WHERE resource_type=%s AND id NOT IN (%s)`,
			tables.Resources, b.push(resourceType), sub), nil
	}
	return sub, nil
}

// valuePredicate builds the "(...)" OR-combined value predicate plus
// returns the index table name to query it against.
func valuePredicate(tables *postgres.TableNames, entry catalog.ParamEntry, mod catalog.Modifier, values []Value, b *sqlBuilder) (table, predicate string, err error) {
	var table2 string
	var parts []string
	for _, v := range values {
		var part string
		switch entry.Type {
		case catalog.TypeToken:
			table2, part = tokenPredicate(mod, v, b)
		case catalog.TypeString:
			table2, part = stringPredicate(mod, v, b)
		case catalog.TypeDate:
			table2, part = datePredicate(v, b)
		case catalog.TypeReference:
			table2, part = referencePredicate(mod, v, b)
		case catalog.TypeQuantity:
			table2, part = quantityPredicate(v, b)
		case catalog.TypeNumber:
			table2, part = numberPredicate(v, b)
		case catalog.TypeURI:
			table2, part = uriPredicate(mod, v, b)
		default:
			return "", "", fmt.Errorf("unsupported parameter type %q", entry.Type)
		}
		parts = append(parts, part)
	}
	if table2 == "" {
		table2 = indexTableFor(tables, entry.Type)
	}
	return table2, strings.Join(parts, " OR "), nil
}

func indexTableFor(tables *postgres.TableNames, t catalog.ParamType) string {
	switch t {
	case catalog.TypeToken:
		return tables.IndexToken
	case catalog.TypeString:
		return tables.IndexString
	case catalog.TypeDate:
		return tables.IndexDate
	case catalog.TypeReference:
		return tables.IndexReference
	case catalog.TypeQuantity:
		return tables.IndexQuantity
	case catalog.TypeNumber:
		return tables.IndexNumber
	case catalog.TypeURI:
		return tables.IndexURI
	case catalog.TypeSpecial:
		return tables.IndexGeo
	default:
		return ""
	}
}

func tokenPredicate(mod catalog.Modifier, v Value, b *sqlBuilder) (string, string) {
	if mod == catalog.ModText {
		arg := b.push("%" + strings.ToLower(v.Raw) + "%")
		return "", fmt.Sprintf("text LIKE %s", arg)
	}
	system, code := splitTokenValue(v.Raw)
	var conds []string
	if system != "" {
		conds = append(conds, fmt.Sprintf("system=%s", b.push(system)))
	}
	if code != "" {
		conds = append(conds, fmt.Sprintf("code=%s", b.push(code)))
	} else if strings.Contains(v.Raw, "|") {
		conds = append(conds, "code=''")
	}
	if len(conds) == 0 {
		return "", "TRUE"
	}
	return "", "(" + strings.Join(conds, " AND ") + ")"
}

// splitTokenValue splits "system|code" FHIR token syntax. A bare value with
// no "|" is treated as a code with no system constraint.
func splitTokenValue(raw string) (system, code string) {
	if !strings.Contains(raw, "|") {
		return "", raw
	}
	parts := strings.SplitN(raw, "|", 2)
	return parts[0], parts[1]
}

func stringPredicate(mod catalog.Modifier, v Value, b *sqlBuilder) (string, string) {
	switch mod {
	case catalog.ModExact:
		return "", fmt.Sprintf("original=%s", b.push(v.Raw))
	case catalog.ModContains:
		return "", fmt.Sprintf("normalized LIKE %s", b.push("%"+strings.ToLower(v.Raw)+"%"))
	default:
		return "", fmt.Sprintf("normalized LIKE %s", b.push(strings.ToLower(v.Raw)+"%"))
	}
}

func datePredicate(v Value, b *sqlBuilder) (string, string) {
	arg := b.push(v.Raw)
	switch v.Prefix {
	case PrefixGt, PrefixSa:
		return "", fmt.Sprintf("instant > %s::timestamptz", arg)
	case PrefixGe:
		return "", fmt.Sprintf("instant >= %s::timestamptz", arg)
	case PrefixLt, PrefixEb:
		return "", fmt.Sprintf("instant < %s::timestamptz", arg)
	case PrefixLe:
		return "", fmt.Sprintf("instant <= %s::timestamptz", arg)
	case PrefixNe:
		return "", fmt.Sprintf("instant <> %s::timestamptz", arg)
	case PrefixAp:
		return "", fmt.Sprintf("instant BETWEEN %s::timestamptz - interval '1 day' AND %s::timestamptz + interval '1 day'", arg, arg)
	default:
		return "", fmt.Sprintf("instant = %s::timestamptz", arg)
	}
}

func referencePredicate(mod catalog.Modifier, v Value, b *sqlBuilder) (string, string) {
	targetType, targetID := splitReferenceValue(v.Raw)
	var conds []string
	if targetType != "" {
		conds = append(conds, fmt.Sprintf("target_type=%s", b.push(targetType)))
	}
	conds = append(conds, fmt.Sprintf("target_id=%s", b.push(targetID)))
	return "", "(" + strings.Join(conds, " AND ") + ")"
}

func splitReferenceValue(raw string) (targetType, targetID string) {
	if strings.Contains(raw, "/") {
		parts := strings.SplitN(raw, "/", 2)
		return parts[0], parts[1]
	}
	return "", raw
}

func quantityPredicate(v Value, b *sqlBuilder) (string, string) {
	// value[|system|code]: compare against has_normalized rows when a unit
	// is given (UCUM-normalized comparison), else raw value.
	value, _, code := splitQuantityValue(v.Raw)
	arg := b.push(value)
	cmp := comparisonOperator(v.Prefix)
	if code == "" {
		return "", fmt.Sprintf("value %s %s", cmp, arg)
	}
	codeArg := b.push(code)
	return "", fmt.Sprintf("((has_normalized AND normalized_value %s %s) OR (NOT has_normalized AND code=%s AND value %s %s))",
		cmp, arg, codeArg, cmp, arg)
}

func splitQuantityValue(raw string) (value, system, code string) {
	parts := strings.SplitN(raw, "|", 3)
	value = parts[0]
	if len(parts) > 1 {
		system = parts[1]
	}
	if len(parts) > 2 {
		code = parts[2]
	}
	return
}

func numberPredicate(v Value, b *sqlBuilder) (string, string) {
	arg := b.push(v.Raw)
	return "", fmt.Sprintf("value %s %s", comparisonOperator(v.Prefix), arg)
}

func uriPredicate(mod catalog.Modifier, v Value, b *sqlBuilder) (string, string) {
	if mod == catalog.ModBelow {
		return "", fmt.Sprintf("value LIKE %s", b.push(v.Raw+"%"))
	}
	if mod == catalog.ModAbove {
		// Any URI that is a prefix of the given value, rarely used but cheap
		// to express as a reverse LIKE using the stored value as the pattern.
		return "", fmt.Sprintf("%s LIKE value || '%%'", b.push(v.Raw))
	}
	return "", fmt.Sprintf("value=%s", b.push(v.Raw))
}

func comparisonOperator(p Prefix) string {
	switch p {
	case PrefixGt, PrefixSa:
		return ">"
	case PrefixGe:
		return ">="
	case PrefixLt, PrefixEb:
		return "<"
	case PrefixLe:
		return "<="
	case PrefixNe:
		return "<>"
	default:
		return "="
	}
}

// lowerChain compiles a forward chain ("subject:Patient.name=Smith") into a
// nested "target_id IN (SELECT id FROM index_reference ... WHERE target_id
// IN (leaf subquery over the target resource type))" fragment.
func lowerChain(tables *postgres.TableNames, cat *catalog.Catalog, resourceType string, c Clause, b *sqlBuilder) (string, error) {
	hop := c.Chain[0]
	refEntry, ok := cat.Lookup(resourceType, hop.RefParam)
	if !ok {
		return "TRUE", nil
	}
	targetType := chainTargetType(hop, refEntry)

	remaining := c
	remaining.Chain = c.Chain[1:]

	var innerSQL string
	var err error
	if len(remaining.Chain) > 0 {
		innerSQL, err = lowerChain(tables, cat, targetType, remaining, b)
	} else {
		leafEntry, ok := cat.Lookup(targetType, c.Param)
		if !ok {
			return "TRUE", nil
		}
		innerSQL, err = lowerLeaf(tables, leafEntry, targetType, c.Modifier, c.Values, b)
	}
	if err != nil {
		return "", err
	}

	rtArg := b.push(resourceType)
	paramArg := b.push(hop.RefParam)
	ttArg := b.push(targetType)
	return fmt.Sprintf(
		`SELECT id FROM %s WHERE resource_type=%s AND param=%s AND target_type=%s AND target_id IN (%s)`,
		tables.IndexReference, rtArg, paramArg, ttArg, innerSQL), nil
}

// lowerHas compiles "_has:Type:refParam:param=value" into a fragment
// selecting ids of resourceType that are referenced by a matching Type
// resource's refParam.
func lowerHas(tables *postgres.TableNames, cat *catalog.Catalog, resourceType string, h *HasClause, b *sqlBuilder) (string, error) {
	var innerSQL string
	var err error
	if h.Inner.HasMod {
		innerSQL, err = lowerHas(tables, cat, h.Type, h.Inner.Has, b)
	} else {
		leafEntry, ok := cat.Lookup(h.Type, h.Inner.Param)
		if !ok {
			return "TRUE", nil
		}
		innerSQL, err = lowerLeaf(tables, leafEntry, h.Type, h.Inner.Modifier, h.Inner.Values, b)
	}
	if err != nil {
		return "", err
	}

	typeArg := b.push(h.Type)
	paramArg := b.push(h.RefParam)
	ttArg := b.push(resourceType)
	return fmt.Sprintf(
		`SELECT target_id FROM %s WHERE resource_type=%s AND param=%s AND target_type=%s AND id IN (%s)`,
		tables.IndexReference, typeArg, paramArg, ttArg, innerSQL), nil
}
