package operation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/store"
)

// BundleEntry is one parsed entry of a transaction/batch Bundle.
type BundleEntry struct {
	Index        int
	FullURL      string
	ResourceType string
	ResourceID   string // empty for POST (server-assigned)
	Method       string // POST | PUT | PATCH | DELETE | GET
	Resource     []byte
	IfMatch      int64
	IfNoneExist  string
	URL          string // the request.url for GET entries
}

// BundleEntryResult is one processed entry's outcome, in original order.
type BundleEntryResult struct {
	Status   string // "201 Created", "200 OK", "204 No Content", "404 Not Found", ...
	Resource store.Resource
	Deleted  bool
	Err      error
}

// processingOrder ranks methods per FHIR's mandated transaction processing
// order: DELETE, POST, PUT/PATCH, GET.
var processingOrder = map[string]int{"DELETE": 0, "POST": 1, "PUT": 2, "PATCH": 2, "GET": 3}

// ParseBundle extracts entries from a transaction/batch Bundle document.
func ParseBundle(doc []byte) ([]BundleEntry, string, error) {
	root := gjson.ParseBytes(doc)
	if !root.IsObject() || root.Get("resourceType").String() != "Bundle" {
		return nil, "", fhirerr.New(fhirerr.KindMalformedRequest, "not-a-bundle", "request body is not a Bundle")
	}
	bundleType := root.Get("type").String()
	if bundleType != "transaction" && bundleType != "batch" {
		return nil, "", fhirerr.New(fhirerr.KindMalformedRequest, "invalid-bundle-type", "Bundle.type must be transaction or batch")
	}

	var entries []BundleEntry
	i := 0
	for _, e := range root.Get("entry").Array() {
		entry := BundleEntry{
			Index:   i,
			FullURL: e.Get("fullUrl").String(),
			Method:  strings.ToUpper(e.Get("request.method").String()),
			URL:     e.Get("request.url").String(),
		}
		if res := e.Get("resource"); res.Exists() {
			entry.Resource = []byte(res.Raw)
			entry.ResourceType = res.Get("resourceType").String()
			entry.ResourceID = res.Get("id").String()
		}
		if entry.ResourceType == "" {
			entry.ResourceType = strings.SplitN(entry.URL, "/", 2)[0]
		}
		if parts := strings.SplitN(entry.URL, "/", 2); len(parts) == 2 && entry.ResourceID == "" {
			entry.ResourceID = parts[1]
		}
		entry.IfNoneExist = e.Get("request.ifNoneExist").String()
		if im := e.Get("request.ifMatch").String(); im != "" {
			fmt.Sscanf(im, `W/"%d"`, &entry.IfMatch)
		}
		entries = append(entries, entry)
		i++
	}
	return entries, bundleType, nil
}

// ProcessBundle executes entries per FHIR transaction/batch semantics: URN
// reference rewriting, DELETE->POST->PUT/PATCH->GET processing order, and
// (for a transaction) one atomic commit covering every entry.
func (e *Engine) ProcessBundle(ctx context.Context, entries []BundleEntry, bundleType string, newID func() string) ([]BundleEntryResult, error) {
	urnMap := map[string]string{}
	for _, entry := range entries {
		if (entry.Method == "POST" || (entry.Method == "PUT" && entry.ResourceID != "")) && strings.HasPrefix(entry.FullURL, "urn:uuid:") {
			id := entry.ResourceID
			if id == "" {
				id = newID()
			}
			urnMap[entry.FullURL] = entry.ResourceType + "/" + id
		}
	}
	for i := range entries {
		if len(entries[i].Resource) > 0 {
			entries[i].Resource = rewriteURNReferences(entries[i].Resource, urnMap)
		}
	}

	ordered := make([]int, len(entries))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		ea, eb := entries[ordered[a]], entries[ordered[b]]
		if processingOrder[ea.Method] != processingOrder[eb.Method] {
			return processingOrder[ea.Method] < processingOrder[eb.Method]
		}
		// Within a method group, process in a fixed (type,id) order so two
		// concurrent bundles touching overlapping resources always acquire
		// their row locks in the same order and cannot deadlock.
		ka := ea.ResourceType + "/" + ea.ResourceID
		kb := eb.ResourceType + "/" + eb.ResourceID
		return ka < kb
	})

	results := make([]BundleEntryResult, len(entries))

	run := func(ctx context.Context) error {
		for _, idx := range ordered {
			entry := entries[idx]
			res, err := e.processEntry(ctx, entry, urnMap)
			results[idx] = res
			if err != nil && bundleType == "transaction" {
				return err
			}
		}
		return nil
	}

	if bundleType == "transaction" {
		if err := e.Store.Tx().ExecTx(ctx, run); err != nil {
			return nil, err
		}
		return results, nil
	}

	// Batch: each entry is independent; failures don't roll back others.
	_ = run(ctx)
	return results, nil
}

func (e *Engine) processEntry(ctx context.Context, entry BundleEntry, urnMap map[string]string) (BundleEntryResult, error) {
	switch entry.Method {
	case "POST":
		if entry.IfNoneExist != "" {
			res, created, err := e.conditionalCreate(ctx, entry.ResourceType, entry.Resource, entry.IfNoneExist, func() string {
				_, id, _ := strings.Cut(urnMap[entry.FullURL], "/")
				return id
			})
			if err != nil {
				return BundleEntryResult{Err: err}, err
			}
			status := "200 OK"
			if created {
				status = "201 Created"
			}
			return BundleEntryResult{Status: status, Resource: res}, nil
		}
		id := entry.ResourceID
		if id == "" {
			if full, ok := urnMap[entry.FullURL]; ok {
				_, id, _ = strings.Cut(full, "/")
			}
		}
		res, err := e.CreateResource(ctx, entry.ResourceType, entry.Resource, func() string {
			if id != "" {
				return id
			}
			return NewServerID()
		})
		if err != nil {
			return BundleEntryResult{Err: err}, err
		}
		return BundleEntryResult{Status: "201 Created", Resource: res}, nil

	case "PUT":
		res, err := e.UpdateResource(ctx, entry.ResourceType, entry.ResourceID, entry.Resource, entry.IfMatch)
		if err != nil {
			return BundleEntryResult{Err: err}, err
		}
		status := "200 OK"
		if res.VersionID == 1 {
			status = "201 Created"
		}
		return BundleEntryResult{Status: status, Resource: res}, nil

	case "PATCH":
		res, err := e.PatchResource(ctx, entry.ResourceType, entry.ResourceID, entry.Resource, entry.IfMatch)
		if err != nil {
			return BundleEntryResult{Err: err}, err
		}
		return BundleEntryResult{Status: "200 OK", Resource: res}, nil

	case "DELETE":
		if err := e.DeleteResource(ctx, entry.ResourceType, entry.ResourceID); err != nil {
			return BundleEntryResult{Err: err}, err
		}
		return BundleEntryResult{Status: "204 No Content", Deleted: true}, nil

	case "GET":
		res, err := e.ReadResource(ctx, entry.ResourceType, entry.ResourceID)
		if err != nil {
			return BundleEntryResult{Err: err}, err
		}
		return BundleEntryResult{Status: "200 OK", Resource: res}, nil

	default:
		err := fhirerr.New(fhirerr.KindMalformedRequest, "invalid-method", fmt.Sprintf("unsupported Bundle.entry.request.method %q", entry.Method))
		return BundleEntryResult{Err: err}, err
	}
}

// rewriteURNReferences replaces every "urn:uuid:..." value found under a
// "reference" key anywhere in doc with its resolved Type/id, walking the
// whole document since a reference can appear at any depth/array index.
func rewriteURNReferences(doc []byte, urnMap map[string]string) []byte {
	result := doc
	walkReferences(gjson.ParseBytes(doc), "", func(path, raw string) {
		resolved, ok := urnMap[raw]
		if !ok {
			return
		}
		var err error
		result, err = sjson.SetBytes(result, path, resolved)
		if err != nil {
			return
		}
	})
	return result
}

// walkReferences visits every "reference" string field in v, calling fn
// with its sjson-compatible path and raw string value.
func walkReferences(v gjson.Result, path string, fn func(path, raw string)) {
	if v.IsObject() {
		v.ForEach(func(key, val gjson.Result) bool {
			k := key.String()
			childPath := joinPath(path, k)
			if k == "reference" && val.Type == gjson.String {
				fn(childPath, val.String())
			} else {
				walkReferences(val, childPath, fn)
			}
			return true
		})
	} else if v.IsArray() {
		i := 0
		v.ForEach(func(_, val gjson.Result) bool {
			walkReferences(val, fmt.Sprintf("%s.%d", path, i), fn)
			i++
			return true
		})
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// NewServerID generates a new server-assigned resource id.
func NewServerID() string { return uuid.NewString() }
