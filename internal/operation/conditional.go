package operation

import (
	"context"
	"net/url"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/search"
	"fhirstore/internal/store"
)

// conditionalCreate implements "If-None-Exist": if query matches zero
// existing resources, create one; if it matches exactly one, return it
// unchanged (created=false); more than one is a conflict.
func (e *Engine) conditionalCreate(ctx context.Context, resourceType string, body []byte, query string, newID func() string) (store.Resource, bool, error) {
	matches, err := e.runConditionalQuery(ctx, resourceType, query)
	if err != nil {
		return store.Resource{}, false, err
	}
	switch len(matches) {
	case 0:
		res, err := e.CreateResource(ctx, resourceType, body, newID)
		return res, true, err
	case 1:
		return matches[0], false, nil
	default:
		return store.Resource{}, false, fhirerr.MultipleMatches(resourceType, query)
	}
}

// ConditionalCreate is the exported form of conditionalCreate, for callers
// outside the package (e.g. the transport layer) handling If-None-Exist.
func (e *Engine) ConditionalCreate(ctx context.Context, resourceType string, body []byte, query string, newID func() string) (store.Resource, bool, error) {
	return e.conditionalCreate(ctx, resourceType, body, query, newID)
}

// ConditionalUpdate implements PUT with a search query instead of an id:
// zero matches creates at a server-assigned id, one match updates it, more
// than one is a conflict.
func (e *Engine) ConditionalUpdate(ctx context.Context, resourceType string, body []byte, query string, newID func() string) (store.Resource, error) {
	matches, err := e.runConditionalQuery(ctx, resourceType, query)
	if err != nil {
		return store.Resource{}, err
	}
	switch len(matches) {
	case 0:
		return e.CreateResource(ctx, resourceType, body, newID)
	case 1:
		return e.UpdateResource(ctx, resourceType, matches[0].ID, body, matches[0].VersionID)
	default:
		return store.Resource{}, fhirerr.MultipleMatches(resourceType, query)
	}
}

// ConditionalDeleteHandling controls what a multi-match conditional delete
// does: error by default, delete-all under Prefer: handling=lenient.
type ConditionalDeleteHandling int

const (
	ConditionalDeleteStrict ConditionalDeleteHandling = iota
	ConditionalDeleteLenient
)

// ConditionalDelete implements DELETE with a search query instead of an id.
func (e *Engine) ConditionalDelete(ctx context.Context, resourceType, query string, handling ConditionalDeleteHandling) (int, error) {
	matches, err := e.runConditionalQuery(ctx, resourceType, query)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	if len(matches) > 1 && handling == ConditionalDeleteStrict {
		return 0, fhirerr.MultipleMatches(resourceType, query)
	}
	for _, m := range matches {
		if err := e.DeleteResource(ctx, resourceType, m.ID); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}

func (e *Engine) runConditionalQuery(ctx context.Context, resourceType, query string) ([]store.Resource, error) {
	values, err := url.ParseQuery(query)
	if err != nil {
		return nil, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-query", "conditional reference query is not valid")
	}
	_, result, err := e.Search.Search(ctx, resourceType, values, search.Lenient)
	if err != nil {
		return nil, err
	}
	return result.Resources, nil
}
