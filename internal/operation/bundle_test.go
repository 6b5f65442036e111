package operation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseBundle_ExtractsEntries(t *testing.T) {
	doc := []byte(`{
		"resourceType":"Bundle",
		"type":"transaction",
		"entry":[
			{"fullUrl":"urn:uuid:11111111-1111-1111-1111-111111111111","resource":{"resourceType":"Patient"},"request":{"method":"POST","url":"Patient"}},
			{"resource":{"resourceType":"Observation","subject":{"reference":"urn:uuid:11111111-1111-1111-1111-111111111111"}},"request":{"method":"POST","url":"Observation"}}
		]
	}`)
	entries, bundleType, err := ParseBundle(doc)
	require.NoError(t, err)
	assert.Equal(t, "transaction", bundleType)
	require.Len(t, entries, 2)
	assert.Equal(t, "POST", entries[0].Method)
	assert.Equal(t, "Patient", entries[0].ResourceType)
}

func TestParseBundle_RejectsNonBundle(t *testing.T) {
	_, _, err := ParseBundle([]byte(`{"resourceType":"Patient"}`))
	assert.Error(t, err)
}

func TestProcessBundle_RewritesURNReferences(t *testing.T) {
	e, _ := newTestEngine(t)
	doc := []byte(`{
		"resourceType":"Bundle",
		"type":"transaction",
		"entry":[
			{"fullUrl":"urn:uuid:11111111-1111-1111-1111-111111111111","resource":{"resourceType":"Patient"},"request":{"method":"POST","url":"Patient"}},
			{"resource":{"resourceType":"Observation","subject":{"reference":"urn:uuid:11111111-1111-1111-1111-111111111111"}},"request":{"method":"POST","url":"Observation"}}
		]
	}`)
	entries, bundleType, err := ParseBundle(doc)
	require.NoError(t, err)

	results, err := e.ProcessBundle(context.Background(), entries, bundleType, NewServerID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		require.NoError(t, r.Err)
	}

	var obsDoc []byte
	for _, r := range results {
		if r.Resource.Type == "Observation" {
			obsDoc = r.Resource.Document
		}
	}
	require.NotNil(t, obsDoc)
	ref := gjson.GetBytes(obsDoc, "subject.reference").String()
	assert.NotContains(t, ref, "urn:uuid:")
	assert.Contains(t, ref, "Patient/")
}

func TestProcessBundle_TransactionRollsBackOnEntryFailure(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateResource(ctx, "Patient", []byte(`{"resourceType":"Patient"}`), func() string { return "dup" })
	require.NoError(t, err)

	doc := []byte(`{
		"resourceType":"Bundle",
		"type":"transaction",
		"entry":[
			{"resource":{"resourceType":"Patient","id":"a1"},"request":{"method":"POST","url":"Patient"}},
			{"resource":{"resourceType":"Patient","id":"dup"},"request":{"method":"POST","url":"Patient"}}
		]
	}`)
	entries, bundleType, err := ParseBundle(doc)
	require.NoError(t, err)

	_, err = e.ProcessBundle(ctx, entries, bundleType, NewServerID)
	assert.Error(t, err)

	_, readErr := fs.Read(ctx, "Patient", "a1")
	assert.Error(t, readErr, "the first entry must not survive when the second fails in a transaction")
}
