package fhirpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_SimpleField(t *testing.T) {
	doc := []byte(`{"resourceType":"Patient","gender":"female"}`)
	frags := Eval(doc, Parse("gender"))
	require.Len(t, frags, 1)
	assert.Equal(t, "female", frags[0].Value.String())
}

func TestEval_MissingFieldYieldsEmpty(t *testing.T) {
	doc := []byte(`{"resourceType":"Patient"}`)
	frags := Eval(doc, Parse("gender"))
	assert.Empty(t, frags)
}

func TestEval_ArrayFlatMap(t *testing.T) {
	doc := []byte(`{"name":[{"given":["Jane","J"],"family":"Doe"},{"given":["Janie"],"family":"Doe"}]}`)
	frags := Eval(doc, Parse("name.given"))
	var got []string
	for _, f := range frags {
		got = append(got, f.Value.String())
	}
	assert.Equal(t, []string{"Jane", "J", "Janie"}, got)
}

func TestEval_Polymorphic(t *testing.T) {
	doc := []byte(`{"valueQuantity":{"value":5,"unit":"mg"}}`)
	frags := Eval(doc, Parse("value[x]"))
	require.Len(t, frags, 1)
	assert.Equal(t, "Quantity", frags[0].Suffix)
	assert.Equal(t, float64(5), frags[0].Value.Get("value").Float())
}

func TestEval_PolymorphicNonQuantityVariant(t *testing.T) {
	doc := []byte(`{"valueBoolean":true}`)
	frags := Eval(doc, Parse("value[x]"))
	require.Len(t, frags, 1)
	assert.Equal(t, "Boolean", frags[0].Suffix)
}

func TestEval_WhereResolveFilter(t *testing.T) {
	doc := []byte(`{"subject":{"reference":"Patient/123"}}`)
	matched := Eval(doc, Parse("subject.where(resolve() is Patient)"))
	require.Len(t, matched, 1)
	assert.Equal(t, "Patient/123", matched[0].Value.Get("reference").String())

	unmatched := Eval(doc, Parse("subject.where(resolve() is Group)"))
	assert.Empty(t, unmatched)
}

func TestEvalAny_UnionsAllExprs(t *testing.T) {
	doc := []byte(`{"onsetDateTime":"2024-01-01"}`)
	frags := EvalAny(doc, []string{"onsetDateTime", "onsetPeriod"})
	require.Len(t, frags, 1)
	assert.Equal(t, "2024-01-01", frags[0].Value.String())
}
