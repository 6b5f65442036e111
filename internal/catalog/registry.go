package catalog

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFiles embed.FS

// commonResourceType is the pseudo resource-type key for cross-resource
// parameters such as _id and _lastUpdated, kept in data/common.yaml.
const commonResourceType = "*"

// Catalog is the process-wide, immutable-after-load parameter table. It is
// loaded once at startup (see Load) and only ever read afterwards; the
// embedded RWMutex exists purely to make that contract safe under the race
// detector for a table that is, in practice, written once.
type Catalog struct {
	mu     sync.RWMutex
	byType map[string]map[string]ParamEntry // resourceType -> paramName -> entry
	common map[string]ParamEntry
}

// Load reads every embedded YAML file under data/ and builds a Catalog.
// Call once at process start; the returned value is safe for concurrent use
// by any number of readers (IX, QC) for the lifetime of the process.
func Load() (*Catalog, error) {
	entries, err := dataFiles.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("read catalog data dir: %w", err)
	}

	c := &Catalog{
		byType: make(map[string]map[string]ParamEntry),
		common: make(map[string]ParamEntry),
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := c.loadFile("data/" + entry.Name()); err != nil {
			return nil, fmt.Errorf("load %s: %w", entry.Name(), err)
		}
	}

	return c, nil
}

func (c *Catalog) loadFile(path string) error {
	raw, err := dataFiles.ReadFile(path)
	if err != nil {
		return err
	}

	var file resourceFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if file.ResourceType == commonResourceType {
		for _, p := range file.Params {
			c.common[p.Name] = p
		}
		return nil
	}

	bucket, ok := c.byType[file.ResourceType]
	if !ok {
		bucket = make(map[string]ParamEntry)
		c.byType[file.ResourceType] = bucket
	}
	for _, p := range file.Params {
		bucket[p.Name] = p
	}
	return nil
}

// Lookup returns the catalog entry for (resourceType, paramName), checking
// the resource-specific set first and falling back to the common
// cross-resource parameters (_id, _lastUpdated, _tag, _profile, _security).
func (c *Catalog) Lookup(resourceType, paramName string) (ParamEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if bucket, ok := c.byType[resourceType]; ok {
		if p, ok := bucket[paramName]; ok {
			return p, true
		}
	}
	if p, ok := c.common[paramName]; ok {
		return p, true
	}
	return ParamEntry{}, false
}

// ParamsFor returns every parameter entry declared for a resource type,
// including the common cross-resource set, for use by IX and by the
// CapabilityStatement-shaped $metadata endpoint.
func (c *Catalog) ParamsFor(resourceType string) []ParamEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ParamEntry, 0, len(c.byType[resourceType])+len(c.common))
	for _, p := range c.byType[resourceType] {
		out = append(out, p)
	}
	for _, p := range c.common {
		out = append(out, p)
	}
	return out
}

// ResourceTypes lists every resource type with at least one declared
// parameter.
func (c *Catalog) ResourceTypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.byType))
	for rt := range c.byType {
		out = append(out, rt)
	}
	return out
}
