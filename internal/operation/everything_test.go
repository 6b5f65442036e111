package operation

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fhirstore/internal/catalog"
	"fhirstore/internal/fhirerr"
	"fhirstore/internal/search"
	"fhirstore/internal/store"
)

// catalogSearcher is a minimal in-memory stand-in for search.Compiler: it
// runs the real Parse/Typecheck path against a real catalog.Catalog, then
// matches clauses by a plain substring check on the stored document
// instead of lowering to SQL. It exists so catalog-lookup bugs (an unknown
// search parameter silently dropped in lenient mode) are exercised the
// same way the real compiler would exercise them.
type catalogSearcher struct {
	cat       *catalog.Catalog
	resources map[string][]store.Resource
}

func (s *catalogSearcher) Search(ctx context.Context, resourceType string, rawQuery url.Values, strictness search.Strictness) (*search.Query, *search.Result, error) {
	q, err := search.Parse(resourceType, rawQuery)
	if err != nil {
		return nil, nil, err
	}
	if err := search.Typecheck(s.cat, q, strictness); err != nil {
		return nil, nil, err
	}

	var out []store.Resource
	for _, r := range s.resources[resourceType] {
		if matchesAllClauses(r, q.Clauses) {
			out = append(out, r)
		}
	}
	return q, &search.Result{Resources: out, Total: len(out)}, nil
}

func matchesAllClauses(r store.Resource, clauses []search.Clause) bool {
	for _, c := range clauses {
		matched := false
		for _, v := range c.Values {
			if strings.Contains(string(r.Document), v.Raw) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func TestEverything_ScopesToCompartment(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)

	fs := newFakeStore()
	fs.current["Patient/p1"] = store.Resource{Type: "Patient", ID: "p1", VersionID: 1, LastUpdated: time.Now().UTC(), Document: []byte(`{"resourceType":"Patient","id":"p1"}`)}

	searcher := &catalogSearcher{
		cat: cat,
		resources: map[string][]store.Resource{
			"Observation": {
				{Type: "Observation", ID: "o1", VersionID: 1, Document: []byte(`{"resourceType":"Observation","id":"o1","subject":{"reference":"Patient/p1"}}`)},
				{Type: "Observation", ID: "o2", VersionID: 1, Document: []byte(`{"resourceType":"Observation","id":"o2","subject":{"reference":"Patient/p2"}}`)},
			},
		},
	}

	e := &Engine{Store: fs, Search: searcher, Catalog: cat}
	resources, err := e.Everything(context.Background(), "p1", []string{"Observation"})
	require.NoError(t, err)

	var ids []string
	for _, r := range resources {
		ids = append(ids, r.Type+"/"+r.ID)
	}
	require.Contains(t, ids, "Patient/p1")
	require.Contains(t, ids, "Observation/o1")
	require.NotContains(t, ids, "Observation/o2")
}

// unresolvedParamSearcher simulates a compartment member type whose
// catalog has no entry for the reference parameter $everything queries
// it with: Typecheck drops the clause as unknown in lenient mode, leaving
// no constraints at all. It mirrors search.Typecheck's documented
// contract (silently drop in lenient, error in strict) so this test
// exercises the exact invariant Everything depends on.
type unresolvedParamSearcher struct {
	resources []store.Resource
}

func (s *unresolvedParamSearcher) Search(ctx context.Context, resourceType string, rawQuery url.Values, strictness search.Strictness) (*search.Query, *search.Result, error) {
	if strictness == search.Strict {
		return nil, nil, fhirerr.New(fhirerr.KindMalformedRequest, "unknown-parameter", resourceType+" has no search parameter for this compartment")
	}
	return &search.Query{ResourceType: resourceType}, &search.Result{Resources: s.resources, Total: len(s.resources)}, nil
}

func TestEverything_UnresolvedCompartmentParamFailsClosed(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)

	fs := newFakeStore()
	fs.current["Patient/p1"] = store.Resource{Type: "Patient", ID: "p1", VersionID: 1, Document: []byte(`{"resourceType":"Patient","id":"p1"}`)}

	// Resources belonging to other patients entirely, that a lenient,
	// clause-dropping search would return for every compartment member
	// type -- the leak this test guards against.
	leaked := []store.Resource{
		{Type: "Observation", ID: "o1", VersionID: 1, Document: []byte(`{"resourceType":"Observation","id":"o1","subject":{"reference":"Patient/someone-else"}}`)},
	}

	e := &Engine{Store: fs, Search: &unresolvedParamSearcher{resources: leaked}, Catalog: cat}
	_, err = e.Everything(context.Background(), "p1", nil)
	require.Error(t, err, "Everything must fail closed rather than return resources scoped to a different patient")
}
