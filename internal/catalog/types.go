// Package catalog is the Parameter Catalog: a static, declarative table
// describing every supported search parameter per resource type. It is the
// single source of truth shared by the Index Extractor and the Query
// Compiler — adding a parameter means adding a catalog entry, not writing
// code in either of those packages.
package catalog

// ParamType enumerates the search-parameter value kinds FHIR defines.
type ParamType string

const (
	TypeToken     ParamType = "token"
	TypeString    ParamType = "string"
	TypeDate      ParamType = "date"
	TypeReference ParamType = "reference"
	TypeQuantity  ParamType = "quantity"
	TypeNumber    ParamType = "number"
	TypeURI       ParamType = "uri"
	TypeComposite ParamType = "composite"
	TypeSpecial   ParamType = "special"
)

// Modifier enumerates the allowed search-parameter modifiers.
type Modifier string

const (
	ModExact      Modifier = "exact"
	ModContains   Modifier = "contains"
	ModNot        Modifier = "not"
	ModMissing    Modifier = "missing"
	ModAbove      Modifier = "above"
	ModBelow      Modifier = "below"
	ModIn         Modifier = "in"
	ModNotIn      Modifier = "not-in"
	ModType       Modifier = "type"
	ModIdentifier Modifier = "identifier"
	ModText       Modifier = "text"
)

// ParamEntry is one catalog entry, keyed externally by (resourceType, name).
type ParamEntry struct {
	Name        string     `yaml:"name"`
	Type        ParamType  `yaml:"type"`
	Paths       []string   `yaml:"paths"`
	TargetTypes []string   `yaml:"target_types,omitempty"`
	Modifiers   []Modifier `yaml:"modifiers,omitempty"`
	Composite   []string   `yaml:"composite,omitempty"`
}

// resourceFile is the shape of one embedded YAML file: all the parameters
// declared for one resource type (or the cross-resource "common" set).
type resourceFile struct {
	ResourceType string       `yaml:"resource_type"`
	Params       []ParamEntry `yaml:"params"`
}

// HasModifier reports whether m is allowed on this parameter.
func (p ParamEntry) HasModifier(m Modifier) bool {
	for _, mod := range p.Modifiers {
		if mod == m {
			return true
		}
	}
	return false
}
