package search

import (
	"context"
	"fmt"

	"fhirstore/internal/store"
)

// Hydrate resolves every _include/_revinclude in q against the primary
// match set, repeating through :iterate specs against the newly-included
// set until a round adds nothing, bounded by maxDepth to guarantee
// termination on a pathological reference cycle.
func (c *Compiler) Hydrate(ctx context.Context, q *Query, primary []store.Resource, maxDepth int) ([]store.Resource, error) {
	seen := make(map[string]bool, len(primary))
	for _, r := range primary {
		seen[key(r.Type, r.ID)] = true
	}

	var included []store.Resource
	frontier := primary

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []store.Resource

		for _, inc := range q.Includes {
			if depth > 0 && !inc.Iterate {
				continue
			}
			found, err := c.resolveIncludes(ctx, inc, frontier)
			if err != nil {
				return nil, err
			}
			next = append(next, found...)
		}
		for _, inc := range q.RevIncludes {
			if depth > 0 && !inc.Iterate {
				continue
			}
			found, err := c.resolveRevIncludes(ctx, inc, frontier)
			if err != nil {
				return nil, err
			}
			next = append(next, found...)
		}

		var fresh []store.Resource
		for _, r := range next {
			k := key(r.Type, r.ID)
			if seen[k] {
				continue
			}
			seen[k] = true
			fresh = append(fresh, r)
		}
		included = append(included, fresh...)
		frontier = fresh

		if len(fresh) == 0 {
			break
		}
	}

	return included, nil
}

func key(resourceType, id string) string { return resourceType + "/" + id }

// resolveIncludes follows inc.RefParam forward from each resource in
// frontier that is of inc.SourceType, fetching the targets it points to.
func (c *Compiler) resolveIncludes(ctx context.Context, inc IncludeSpec, frontier []store.Resource) ([]store.Resource, error) {
	var ids []string
	for _, r := range frontier {
		if r.Type != inc.SourceType {
			continue
		}
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	b := &sqlBuilder{}
	idsArg := b.push(ids)
	rtArg := b.push(inc.SourceType)
	paramArg := b.push(inc.RefParam)

	query := fmt.Sprintf(
		`SELECT DISTINCT target_type, target_id FROM %s WHERE resource_type=%s AND param=%s AND id=ANY(%s)`,
		c.tables.IndexReference, rtArg, paramArg, idsArg,
	)
	if inc.TargetType != "" {
		ttArg := b.push(inc.TargetType)
		query += fmt.Sprintf(" AND target_type=%s", ttArg)
	}

	rows, err := c.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("resolve include targets: %w", err)
	}
	var targets [][2]string
	for rows.Next() {
		var tt, tid string
		if err := rows.Scan(&tt, &tid); err != nil {
			rows.Close()
			return nil, err
		}
		targets = append(targets, [2]string{tt, tid})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return c.fetchMany(ctx, targets)
}

// resolveRevIncludes follows inc.RefParam backward: finds resources of
// inc.SourceType whose inc.RefParam points at any resource in frontier.
func (c *Compiler) resolveRevIncludes(ctx context.Context, inc IncludeSpec, frontier []store.Resource) ([]store.Resource, error) {
	targetType := inc.TargetType
	var ids []string
	for _, r := range frontier {
		if targetType != "" && r.Type != targetType {
			continue
		}
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	b := &sqlBuilder{}
	rtArg := b.push(inc.SourceType)
	paramArg := b.push(inc.RefParam)
	idsArg := b.push(ids)

	query := fmt.Sprintf(
		`SELECT DISTINCT resource_type, id FROM %s WHERE resource_type=%s AND param=%s AND target_id=ANY(%s)`,
		c.tables.IndexReference, rtArg, paramArg, idsArg,
	)

	rows, err := c.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("resolve revinclude sources: %w", err)
	}
	var sources [][2]string
	for rows.Next() {
		var rt, id string
		if err := rows.Scan(&rt, &id); err != nil {
			rows.Close()
			return nil, err
		}
		sources = append(sources, [2]string{rt, id})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return c.fetchMany(ctx, sources)
}

func (c *Compiler) fetchMany(ctx context.Context, refs [][2]string) ([]store.Resource, error) {
	var out []store.Resource
	for _, ref := range refs {
		var res store.Resource
		res.Type, res.ID = ref[0], ref[1]
		err := c.pool.QueryRow(ctx, fmt.Sprintf(
			`SELECT current_version, last_updated, document FROM %s WHERE resource_type=$1 AND id=$2 AND deleted=false`,
			c.tables.Resources,
		), ref[0], ref[1]).Scan(&res.VersionID, &res.LastUpdated, &res.Document)
		if err != nil {
			continue // a dangling/deleted reference is simply not included
		}
		out = append(out, res)
	}
	return out, nil
}
