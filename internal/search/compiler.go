package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"fhirstore/internal/catalog"
	"fhirstore/internal/repository/postgres"
	"fhirstore/internal/store"
)

// Compiler is the Query Compiler: it parses, typechecks, and lowers a
// search request, then runs the resulting SQL directly against the Store's
// index tables. Reads bypass the store.Store interface entirely — only
// writes go through it — since the whole point of this component is
// exploiting the index tables' SQL shape directly.
type Compiler struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	cat    *catalog.Catalog
}

// NewCompiler builds a Compiler over pool/tables/cat.
func NewCompiler(pool *pgxpool.Pool, tables *postgres.TableNames, cat *catalog.Catalog) *Compiler {
	return &Compiler{pool: pool, tables: tables, cat: cat}
}

// Result is one page of a search.
type Result struct {
	Resources  []store.Resource
	Total      int // -1 when not computed
	NextCursor string
}

// Search parses, typechecks, and executes rawQuery against resourceType,
// returning the matching page plus its resolved Query (needed by callers
// wanting to build Bundle.link self/next entries from Count/Cursor).
func (c *Compiler) Search(ctx context.Context, resourceType string, rawQuery url.Values, strictness Strictness) (*Query, *Result, error) {
	q, err := Parse(resourceType, rawQuery)
	if err != nil {
		return nil, nil, err
	}
	if err := Typecheck(c.cat, q, strictness); err != nil {
		return nil, nil, err
	}

	b := &sqlBuilder{}
	var conds []string
	for _, clause := range q.Clauses {
		cond, err := lowerClause(c.tables, c.cat, resourceType, clause, b)
		if err != nil {
			return nil, nil, err
		}
		conds = append(conds, cond)
	}

	rtArg := b.push(resourceType)
	where := fmt.Sprintf("resource_type=%s AND deleted=false", rtArg)
	if len(conds) > 0 {
		where += " AND " + strings.Join(conds, " AND ")
	}

	// The _total count, if requested, is computed over the same WHERE
	// clause before the keyset bound is added -- it counts the whole match
	// set, not just what's reachable forward from this page.
	var totalArgs []interface{}
	if q.TotalMode == TotalAccurate {
		totalArgs = append([]interface{}{}, b.args...)
	}

	orderBy := buildOrderBy(q.Sort)
	desc := primarySortDesc(q.Sort)
	limit := q.Count

	key, err := decodeCursor(q.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if !key.isZero() {
		tsArg := b.push(key.lastUpdated)
		idArg := b.push(key.id)
		cmp := ">"
		if desc {
			cmp = "<"
		}
		where += fmt.Sprintf(" AND (last_updated %s %s OR (last_updated = %s AND id > %s))", cmp, tsArg, tsArg, idArg)
	}

	limitArg := b.push(limit + 1) // fetch one extra row to detect a next page

	sqlText := fmt.Sprintf(
		`SELECT id, current_version, last_updated, document FROM %s WHERE %s ORDER BY %s LIMIT %s`,
		c.tables.Resources, where, orderBy, limitArg,
	)

	rows, err := c.pool.Query(ctx, sqlText, b.args...)
	if err != nil {
		return nil, nil, fmt.Errorf("execute search query: %w", err)
	}
	defer rows.Close()

	var resources []store.Resource
	for rows.Next() {
		var res store.Resource
		res.Type = resourceType
		if err := rows.Scan(&res.ID, &res.VersionID, &res.LastUpdated, &res.Document); err != nil {
			return nil, nil, fmt.Errorf("scan search row: %w", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	result := &Result{Total: -1}
	hasMore := len(resources) > limit
	if hasMore {
		resources = resources[:limit]
	}
	result.Resources = resources
	if hasMore {
		last := resources[len(resources)-1]
		result.NextCursor = encodeCursor(cursorKey{lastUpdated: last.LastUpdated, id: last.ID})
	}

	if q.TotalMode == TotalAccurate {
		countWhere := fmt.Sprintf("resource_type=%s AND deleted=false", rtArg)
		if len(conds) > 0 {
			countWhere += " AND " + strings.Join(conds, " AND ")
		}
		countSQL := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s`, c.tables.Resources, countWhere)
		if err := c.pool.QueryRow(ctx, countSQL, totalArgs...).Scan(&result.Total); err != nil {
			return nil, nil, fmt.Errorf("count total: %w", err)
		}
	}

	return q, result, nil
}

// primarySortDesc reports the sort direction of the column the keyset
// cursor is built against. buildOrderBy always appends "id ASC" as a
// tie-breaker and otherwise sorts by last_updated (see sortColumn), so the
// only direction that matters for the keyset predicate is the first
// explicit sort's, defaulting to the same DESC buildOrderBy defaults to.
func primarySortDesc(sorts []SortSpec) bool {
	if len(sorts) == 0 {
		return true
	}
	return sorts[0].Desc
}

func buildOrderBy(sorts []SortSpec) string {
	if len(sorts) == 0 {
		return "last_updated DESC, id ASC"
	}
	var parts []string
	for _, s := range sorts {
		col := sortColumn(s.Param)
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", col, dir))
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}

// sortColumn maps a few well-known control-equivalent sort params to a
// resources-table column; sorting by an arbitrary indexed search parameter
// would require a join this MVP sort doesn't attempt, so it falls back to
// last_updated.
func sortColumn(param string) string {
	switch param {
	case "_lastUpdated":
		return "last_updated"
	default:
		return "last_updated"
	}
}
