package index

import "strings"

// unitDef is one entry in the fixed-minimum UCUM conversion table: an affine
// map (scale*x + offset) from a unit into its dimension's canonical base
// unit. Covers four dimensions — mass, volume, time, temperature — the
// bulk of Observation.valueQuantity traffic, without pulling in a full
// UCUM engine.
type unitDef struct {
	dimension string
	scale     float64
	offset    float64
}

// canonical units: grams (mass), liters (volume), seconds (time), kelvin
// (temperature).
var ucumTable = map[string]unitDef{
	// mass -> g
	"g":  {"mass", 1, 0},
	"kg": {"mass", 1000, 0},
	"mg": {"mass", 0.001, 0},
	"ug": {"mass", 0.000001, 0},
	"mcg": {"mass", 0.000001, 0},

	// volume -> L
	"L":  {"volume", 1, 0},
	"l":  {"volume", 1, 0},
	"mL": {"volume", 0.001, 0},
	"ml": {"volume", 0.001, 0},
	"dL": {"volume", 0.1, 0},
	"dl": {"volume", 0.1, 0},

	// time -> s
	"s":   {"time", 1, 0},
	"min": {"time", 60, 0},
	"h":   {"time", 3600, 0},
	"d":   {"time", 86400, 0},
	"wk":  {"time", 604800, 0},

	// temperature -> K
	"K":     {"temperature", 1, 0},
	"Cel":   {"temperature", 1, 273.15},
	"[degF]": {"temperature", 5.0 / 9.0, 255.372222},
}

// toCanonical converts value expressed in unit to its dimension's canonical
// base unit, returning (normalizedValue, dimension, ok). ok is false when
// unit is not in the fixed table; callers must still index the raw
// value/unit pair (per the catalog fallback) and simply skip normalization.
func toCanonical(value float64, unit string) (float64, string, bool) {
	def, ok := ucumTable[strings.TrimSpace(unit)]
	if !ok {
		return 0, "", false
	}
	return def.scale*value + def.offset, def.dimension, true
}
