package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	want := cursorKey{lastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), id: "abc-123"}

	got, err := decodeCursor(encodeCursor(want))
	require.NoError(t, err)
	assert.True(t, want.lastUpdated.Equal(got.lastUpdated))
	assert.Equal(t, want.id, got.id)
}

func TestDecodeCursor_Empty(t *testing.T) {
	got, err := decodeCursor("")
	require.NoError(t, err)
	assert.True(t, got.isZero())
}

func TestDecodeCursor_Malformed(t *testing.T) {
	_, err := decodeCursor("not-valid-base64!!")
	assert.Error(t, err)

	_, err = decodeCursor(encodeCursor(cursorKey{}))
	assert.Error(t, err, "a cursor with no id is never produced by this package and should be rejected")
}

func TestBundleLinks_NoCursorMeansNoNextOrSelfCursor(t *testing.T) {
	q := &Query{Count: 25}
	result := &Result{}

	links := BundleLinks("https://example.org/Patient", q, result)
	assert.Equal(t, "https://example.org/Patient&_count=25", links["self"])
	assert.Equal(t, "https://example.org/Patient&_count=25", links["first"])
	assert.NotContains(t, links, "next")
	assert.NotContains(t, links, "previous")
}

func TestBundleLinks_NextCursorCarriesForward(t *testing.T) {
	q := &Query{Count: 25}
	result := &Result{NextCursor: "opaque-token"}

	links := BundleLinks("https://example.org/Patient", q, result)
	assert.Equal(t, "https://example.org/Patient&_count=25&_cursor=opaque-token", links["next"])
}
