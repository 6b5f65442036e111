package catalog

import "fmt"

// The compartment table is tiny and fully enumerable, so it is kept as a
// plain Go map rather than a second embed.FS tree next to data/*.yaml.

// PatientCompartmentParam returns the search-parameter name used by
// resourceType to reference a Patient. Most resource types use "patient"
// or "subject"; a small set of exceptions is listed explicitly.
func PatientCompartmentParam(resourceType string) (string, bool) {
	if p, ok := compartmentExceptions[resourceType]; ok {
		return p, true
	}
	if _, ok := compartmentMembers[resourceType]; ok {
		return "patient", true
	}
	return "", false
}

// CompartmentMemberTypes lists every resource type considered a member of
// the Patient compartment.
func CompartmentMemberTypes() []string {
	out := make([]string, 0, len(compartmentMembers))
	for rt := range compartmentMembers {
		out = append(out, rt)
	}
	return out
}

// compartmentMembers is the fixed list of resource types that are Patient
// compartment members.
var compartmentMembers = map[string]struct{}{
	"Observation":        {},
	"Condition":          {},
	"Encounter":          {},
	"MedicationRequest":  {},
	"MedicationStatement": {},
	"Procedure":          {},
	"AllergyIntolerance": {},
	"Immunization":       {},
	"DiagnosticReport":   {},
	"DocumentReference":  {},
	"CarePlan":           {},
	"CareTeam":           {},
	"Coverage":           {},
	"Group":              {},
	"Person":             {},
}

// compartmentExceptions overrides the default "patient"/"subject" lookup
// for resource types whose reference to the patient uses a different
// parameter name.
var compartmentExceptions = map[string]string{
	"Coverage": "beneficiary",
	"Group":    "member",
	"Person":   "link",
}

// ValidatePatientCompartment returns an error if resourceType is not a
// known Patient-compartment member.
func ValidatePatientCompartment(resourceType string) error {
	if _, ok := compartmentMembers[resourceType]; !ok {
		return fmt.Errorf("%s is not a Patient compartment member", resourceType)
	}
	return nil
}
