package operation

import (
	"context"
	"net/url"

	"fhirstore/internal/catalog"
	"fhirstore/internal/search"
	"fhirstore/internal/store"
)

// Everything implements Patient/$everything: the Patient resource itself
// plus every resource in its compartment (per internal/catalog's
// compartment table), optionally restricted to a subset of types.
func (e *Engine) Everything(ctx context.Context, patientID string, restrictTypes []string) ([]store.Resource, error) {
	patient, err := e.Store.Read(ctx, "Patient", patientID)
	if err != nil {
		return nil, err
	}

	wanted := map[string]bool{}
	for _, t := range restrictTypes {
		wanted[t] = true
	}

	out := []store.Resource{patient}
	for _, memberType := range catalog.CompartmentMemberTypes() {
		if len(wanted) > 0 && !wanted[memberType] {
			continue
		}
		param, ok := catalog.PatientCompartmentParam(memberType)
		if !ok {
			continue
		}
		values := url.Values{param: {"Patient/" + patientID}, "_count": {"1000"}}
		_, result, err := e.Search.Search(ctx, memberType, values, search.Strict)
		if err != nil {
			return nil, err
		}
		out = append(out, result.Resources...)
	}
	return out, nil
}
