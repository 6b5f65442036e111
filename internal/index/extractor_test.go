package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhirstore/internal/catalog"
	"fhirstore/internal/store"
)

func loadTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	require.NoError(t, err)
	return cat
}

func TestExtract_TokenFromCodeableConcept(t *testing.T) {
	cat := loadTestCatalog(t)
	doc := []byte(`{
		"resourceType":"Observation",
		"code":{"coding":[{"system":"http://loinc.org","code":"1234-5"}],"text":"Glucose"}
	}`)
	rows := Extract(cat, "Observation", "obs1", doc, nil)
	row := findRow(t, rows, "code")
	require.NotNil(t, row.Token)
	assert.Equal(t, "http://loinc.org", row.Token.System)
	assert.Equal(t, "1234-5", row.Token.Code)
}

func TestExtract_ReferenceFromSubject(t *testing.T) {
	cat := loadTestCatalog(t)
	doc := []byte(`{"resourceType":"Observation","subject":{"reference":"Patient/123"},"code":{"coding":[{"code":"x"}]}}`)
	rows := Extract(cat, "Observation", "obs1", doc, nil)
	row := findRow(t, rows, "subject")
	require.NotNil(t, row.Reference)
	assert.Equal(t, "Patient", row.Reference.TargetType)
	assert.Equal(t, "123", row.Reference.TargetID)
}

func TestExtract_QuantityNormalization(t *testing.T) {
	cat := loadTestCatalog(t)
	doc := []byte(`{"resourceType":"Observation","valueQuantity":{"value":5,"system":"http://unitsofmeasure.org","code":"mg"},"code":{"coding":[{"code":"x"}]}}`)
	rows := Extract(cat, "Observation", "obs1", doc, nil)
	row := findRow(t, rows, "value-quantity")
	require.NotNil(t, row.Quantity)
	assert.True(t, row.Quantity.HasNormalized)
	assert.Equal(t, "mass", row.Quantity.NormalizedDimension)
	assert.InDelta(t, 0.005, row.Quantity.NormalizedValue, 1e-9)
}

func TestExtract_DateDayPrecision(t *testing.T) {
	cat := loadTestCatalog(t)
	doc := []byte(`{"resourceType":"Condition","onsetDateTime":"2024-03-15","code":{"coding":[{"code":"x"}]}}`)
	rows := Extract(cat, "Condition", "c1", doc, nil)
	row := findRow(t, rows, "onset-date")
	require.NotNil(t, row.Date)
	assert.Equal(t, store.PrecisionDay, row.Date.Precision)
}

func TestExtract_MissingFieldProducesNoRows(t *testing.T) {
	cat := loadTestCatalog(t)
	doc := []byte(`{"resourceType":"Patient"}`)
	rows := Extract(cat, "Patient", "p1", doc, nil)
	for _, r := range rows {
		assert.NotEqual(t, "gender", r.Param)
	}
}

func findRow(t *testing.T, rows []store.IndexRow, param string) store.IndexRow {
	t.Helper()
	for _, r := range rows {
		if r.Param == param {
			return r
		}
	}
	t.Fatalf("no row found for param %q in %d rows", param, len(rows))
	return store.IndexRow{}
}
