package search

import (
	"net/url"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirstore/internal/catalog"
)

func TestParse_SimpleClause(t *testing.T) {
	q, err := Parse("Patient", url.Values{"family": {"Smith"}})
	require.NoError(t, err)
	require.Len(t, q.Clauses, 1)
	assert.Equal(t, "family", q.Clauses[0].Param)
	assert.Equal(t, "Smith", q.Clauses[0].Values[0].Raw)
}

func TestParse_ModifierSuffix(t *testing.T) {
	q, err := Parse("Patient", url.Values{"name:exact": {"Smith"}})
	require.NoError(t, err)
	require.Len(t, q.Clauses, 1)
	assert.Equal(t, catalog.ModExact, q.Clauses[0].Modifier)
}

func TestParse_CommaSeparatedOrValues(t *testing.T) {
	q, err := Parse("Observation", url.Values{"code": {"a,b,c"}})
	require.NoError(t, err)
	require.Len(t, q.Clauses[0].Values, 3)
}

func TestParse_DatePrefix(t *testing.T) {
	q, err := Parse("Observation", url.Values{"date": {"gt2024-01-01"}})
	require.NoError(t, err)
	assert.Equal(t, PrefixGt, q.Clauses[0].Values[0].Prefix)
	assert.Equal(t, "2024-01-01", q.Clauses[0].Values[0].Raw)
}

func TestParse_ForwardChain(t *testing.T) {
	q, err := Parse("Observation", url.Values{"subject:Patient.name": {"Smith"}})
	require.NoError(t, err)
	require.Len(t, q.Clauses[0].Chain, 1)
	assert.Equal(t, "subject", q.Clauses[0].Chain[0].RefParam)
	assert.Equal(t, "Patient", q.Clauses[0].Chain[0].TargetType)
	assert.Equal(t, "name", q.Clauses[0].Param)
}

func TestParse_HasReverseChain(t *testing.T) {
	q, err := Parse("Patient", url.Values{"_has:Observation:subject:code": {"1234-5"}})
	require.NoError(t, err)
	require.Len(t, q.Clauses, 1)
	require.NotNil(t, q.Clauses[0].Has)
	assert.Equal(t, "Observation", q.Clauses[0].Has.Type)
	assert.Equal(t, "subject", q.Clauses[0].Has.RefParam)
	assert.Equal(t, "code", q.Clauses[0].Has.Inner.Param)
}

func TestParse_MultipleClausesFullShape(t *testing.T) {
	q, err := Parse("Observation", url.Values{
		"code": {"a,b"},
		"date": {"gt2024-01-01"},
	})
	require.NoError(t, err)

	got := append([]Clause(nil), q.Clauses...)
	sort.Slice(got, func(i, j int) bool { return got[i].Param < got[j].Param })

	want := []Clause{
		{Param: "code", Values: []Value{{Raw: "a"}, {Raw: "b"}}},
		{Param: "date", Values: []Value{{Prefix: PrefixGt, Raw: "2024-01-01"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parsed clauses mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_IncludeWithIterate(t *testing.T) {
	q, err := Parse("Observation", url.Values{"_include:iterate": {"Observation:subject:Patient"}})
	require.NoError(t, err)
	require.Len(t, q.Includes, 1)
	assert.True(t, q.Includes[0].Iterate)
	assert.Equal(t, "Patient", q.Includes[0].TargetType)
}

func TestParse_CountAndTotal(t *testing.T) {
	q, err := Parse("Patient", url.Values{"_count": {"10"}, "_total": {"accurate"}})
	require.NoError(t, err)
	assert.Equal(t, 10, q.Count)
	assert.Equal(t, TotalAccurate, q.TotalMode)
}

func TestTypecheck_UnknownParamLenientDropsClause(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)
	q, err := Parse("Patient", url.Values{"bogus-param": {"x"}})
	require.NoError(t, err)
	require.NoError(t, Typecheck(cat, q, Lenient))
	assert.Empty(t, q.Clauses)
}

func TestTypecheck_UnknownParamStrictErrors(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)
	q, err := Parse("Patient", url.Values{"bogus-param": {"x"}})
	require.NoError(t, err)
	assert.Error(t, Typecheck(cat, q, Strict))
}

func TestTypecheck_KnownParamSurvives(t *testing.T) {
	cat, err := catalog.Load()
	require.NoError(t, err)
	q, err := Parse("Patient", url.Values{"family": {"Smith"}})
	require.NoError(t, err)
	require.NoError(t, Typecheck(cat, q, Strict))
	assert.Len(t, q.Clauses, 1)
}
