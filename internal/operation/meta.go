package operation

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"fhirstore/internal/store"
)

// GetMeta returns the meta element of a resource instance, per $meta.
func (e *Engine) GetMeta(ctx context.Context, resourceType, id string) (json.RawMessage, error) {
	res, err := e.ReadResource(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	meta := gjson.GetBytes(res.Document, "meta")
	if !meta.Exists() {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(meta.Raw), nil
}

// AddMeta implements $meta-add: unions tag/profile/security arrays from
// addition into the resource's current meta and persists a new version.
func (e *Engine) AddMeta(ctx context.Context, resourceType, id string, addition json.RawMessage) (store.Resource, error) {
	current, err := e.Store.Read(ctx, resourceType, id)
	if err != nil {
		return store.Resource{}, err
	}
	doc := current.Document
	for _, field := range []string{"tag", "coding", "profile", "security"} {
		matches := tagMatches
		if field == "profile" {
			matches = stringMatches
		}
		for _, v := range gjson.GetBytes(addition, field).Array() {
			present := false
			for _, have := range gjson.GetBytes(doc, "meta."+field).Array() {
				present = present || matches(have, v)
			}
			if !present {
				doc, _ = sjson.SetRawBytes(doc, "meta."+field+".-1", []byte(v.Raw))
			}
		}
	}
	return e.Store.Update(ctx, resourceType, id, e.buildWriteSet(resourceType, id, doc), current.VersionID)
}

// DeleteMeta implements $meta-delete: removes any tag/profile/security
// entries matching removal's entries by exact system+code (for tags) or
// exact string (for profile canonical URLs).
func (e *Engine) DeleteMeta(ctx context.Context, resourceType, id string, removal json.RawMessage) (store.Resource, error) {
	current, err := e.Store.Read(ctx, resourceType, id)
	if err != nil {
		return store.Resource{}, err
	}
	doc := filterMetaArray(current.Document, "meta.tag", removal, "tag", tagMatches)
	doc = filterMetaArray(doc, "meta.security", removal, "security", tagMatches)
	doc = filterMetaArray(doc, "meta.profile", removal, "profile", stringMatches)
	return e.Store.Update(ctx, resourceType, id, e.buildWriteSet(resourceType, id, doc), current.VersionID)
}

func tagMatches(a, b gjson.Result) bool {
	return a.Get("system").String() == b.Get("system").String() && a.Get("code").String() == b.Get("code").String()
}

func stringMatches(a, b gjson.Result) bool { return a.String() == b.String() }

func filterMetaArray(doc []byte, path string, removal json.RawMessage, removalField string, matches func(a, b gjson.Result) bool) []byte {
	toRemove := gjson.GetBytes(removal, removalField).Array()
	if len(toRemove) == 0 {
		return doc
	}
	current := gjson.GetBytes(doc, path).Array()
	var kept []gjson.Result
	for _, item := range current {
		remove := false
		for _, r := range toRemove {
			if matches(item, r) {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, item)
		}
	}
	out := doc
	out, _ = sjson.DeleteBytes(out, path)
	for _, item := range kept {
		out, _ = sjson.SetRawBytes(out, path+".-1", []byte(item.Raw))
	}
	return out
}
