package operation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirstore/internal/catalog"
	"fhirstore/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	fs := newFakeStore()
	return &Engine{Store: fs, Search: &fakeSearcher{}, Catalog: cat}, fs
}

func TestCreateResource_AssignsIDAndVersion(t *testing.T) {
	e, _ := newTestEngine(t)
	res, err := e.CreateResource(context.Background(), "Patient", []byte(`{"resourceType":"Patient"}`), func() string { return "abc" })
	require.NoError(t, err)
	assert.Equal(t, "abc", res.ID)
	assert.Equal(t, int64(1), res.VersionID)
}

func TestUpdateResource_CreatesWhenAbsent(t *testing.T) {
	e, _ := newTestEngine(t)
	res, err := e.UpdateResource(context.Background(), "Patient", "p1", []byte(`{"resourceType":"Patient"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.VersionID)
}

func TestUpdateResource_VersionConflict(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateResource(ctx, "Patient", []byte(`{"resourceType":"Patient"}`), func() string { return "p1" })
	require.NoError(t, err)
	_, err = e.UpdateResource(ctx, "Patient", "p1", []byte(`{"resourceType":"Patient"}`), 99)
	assert.Error(t, err)
}

func TestPatchResource_MergesFields(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateResource(ctx, "Patient", []byte(`{"resourceType":"Patient","active":true}`), func() string { return "p1" })
	require.NoError(t, err)
	res, err := e.PatchResource(ctx, "Patient", "p1", []byte(`{"active":false}`), 0)
	require.NoError(t, err)
	assert.Contains(t, string(res.Document), `"active":false`)
}

func TestDeleteResource_IsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateResource(ctx, "Patient", []byte(`{"resourceType":"Patient"}`), func() string { return "p1" })
	require.NoError(t, err)
	require.NoError(t, e.DeleteResource(ctx, "Patient", "p1"))
	require.NoError(t, e.DeleteResource(ctx, "Patient", "p1"))
	_, err = e.Store.Read(ctx, "Patient", "p1")
	assert.Error(t, err)
}

func TestConditionalCreate_NoMatchCreates(t *testing.T) {
	e, _ := newTestEngine(t)
	res, created, err := e.conditionalCreate(context.Background(), "Patient", []byte(`{"resourceType":"Patient"}`), "identifier=123", func() string { return "p1" })
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "p1", res.ID)
}

func TestConditionalCreate_OneMatchReturnsExisting(t *testing.T) {
	e, _ := newTestEngine(t)
	existing, err := e.CreateResource(context.Background(), "Patient", []byte(`{"resourceType":"Patient"}`), func() string { return "p1" })
	require.NoError(t, err)
	e.Search = &fakeSearcher{resources: []store.Resource{existing}}

	res, created, err := e.conditionalCreate(context.Background(), "Patient", []byte(`{"resourceType":"Patient"}`), "identifier=123", func() string { return "p2" })
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "p1", res.ID)
}

func TestConditionalCreate_MultipleMatchesErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Search = &fakeSearcher{resources: []store.Resource{{Type: "Patient", ID: "p1"}, {Type: "Patient", ID: "p2"}}}

	_, _, err := e.conditionalCreate(context.Background(), "Patient", []byte(`{"resourceType":"Patient"}`), "identifier=123", func() string { return "p3" })
	assert.Error(t, err)
}

func TestConditionalDelete_LenientDeletesAll(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateResource(ctx, "Patient", []byte(`{"resourceType":"Patient"}`), func() string { return "p1" })
	require.NoError(t, err)
	_, err = e.CreateResource(ctx, "Patient", []byte(`{"resourceType":"Patient"}`), func() string { return "p2" })
	require.NoError(t, err)
	e.Search = &fakeSearcher{resources: []store.Resource{{Type: "Patient", ID: "p1"}, {Type: "Patient", ID: "p2"}}}

	n, err := e.ConditionalDelete(ctx, "Patient", "active=true", ConditionalDeleteLenient)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = fs.Read(ctx, "Patient", "p1")
	assert.Error(t, err)
}

func TestConditionalDelete_StrictErrorsOnMultipleMatches(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Search = &fakeSearcher{resources: []store.Resource{{Type: "Patient", ID: "p1"}, {Type: "Patient", ID: "p2"}}}

	_, err := e.ConditionalDelete(context.Background(), "Patient", "active=true", ConditionalDeleteStrict)
	assert.Error(t, err)
}
