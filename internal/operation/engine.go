// Package operation implements request-level FHIR semantics (CRUD, Bundle
// transaction/batch processing, $everything, $validate, $meta, history,
// and conditional create/update/delete) built on top of the resource
// store and search compiler.
package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"fhirstore/internal/audit"
	"fhirstore/internal/catalog"
	"fhirstore/internal/fhirerr"
	"fhirstore/internal/index"
	"fhirstore/internal/notify"
	"fhirstore/internal/search"
	"fhirstore/internal/store"
)

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// Searcher is the slice of *search.Compiler the Operation Layer depends on,
// kept as an interface so engine tests can exercise bundle/conditional
// logic against a fake without a real database.
type Searcher interface {
	Search(ctx context.Context, resourceType string, rawQuery url.Values, strictness search.Strictness) (*search.Query, *search.Result, error)
}

// Engine wires together the Store, Query Compiler, and Parameter Catalog
// into the request-level operations a transport adapter calls.
type Engine struct {
	Store    store.Store
	Search   Searcher
	Catalog  *catalog.Catalog
	Log      *slog.Logger
	MaxChain int // bound on _include/_revinclude :iterate rounds, passed to Hydrate

	Audit  *audit.Sink       // optional; nil disables audit emission
	Notify *notify.Publisher // optional; nil disables change notification
}

// actorKey is the context key the request's actor (the verified
// Principal's subject, or "" when unauthenticated) is stored under. Kept
// per-request in the context rather than on Engine itself since one Engine
// value is shared across concurrent requests.
type actorKey struct{}

// WithActor returns a context carrying actor for audit events emitted by
// calls made with it.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func (e *Engine) emitAudit(ctx context.Context, action audit.Action, resourceType, id string, versionID int64, outcome string) {
	if e.Audit == nil {
		return
	}
	e.Audit.Emit(audit.Event{
		Action: action, ResourceType: resourceType, ResourceID: id,
		VersionID: versionID, Actor: actorFrom(ctx), Outcome: outcome, At: time.Now().UTC(),
	})
}

func (e *Engine) publishChange(kind notify.ChangeKind, resourceType, id string, versionID int64) {
	if e.Notify == nil {
		return
	}
	e.Notify.Publish(notify.Change{
		ResourceType: resourceType, ResourceID: id, VersionID: versionID, Kind: kind,
	})
}

// buildWriteSet indexes document against the catalog and packages it with
// the document for a Store write.
func (e *Engine) buildWriteSet(resourceType, id string, document json.RawMessage) store.WriteSet {
	rows := index.Extract(e.Catalog, resourceType, id, document, e.Log)
	return store.WriteSet{Document: document, Rows: rows}
}

// CreateResource assigns the resource a new server id, stamps its metadata,
// and persists it.
func (e *Engine) CreateResource(ctx context.Context, resourceType string, body json.RawMessage, newID func() string) (store.Resource, error) {
	if !gjson.ValidBytes(body) {
		return store.Resource{}, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-json", "request body is not valid JSON")
	}
	id := newID()
	stamped, err := stampMeta(body, resourceType, id, 1)
	if err != nil {
		return store.Resource{}, err
	}
	ws := e.buildWriteSet(resourceType, id, stamped)
	res, err := e.Store.Create(ctx, resourceType, id, ws)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.emitAudit(ctx, audit.ActionCreate, resourceType, id, res.VersionID, outcome)
	if err == nil {
		e.publishChange(notify.ChangeCreate, resourceType, id, res.VersionID)
	}
	return res, err
}

// UpdateResource replaces (or creates, per FHIR's PUT-as-upsert rule) a
// resource at a caller-supplied id.
func (e *Engine) UpdateResource(ctx context.Context, resourceType, id string, body json.RawMessage, ifMatchVersion int64) (store.Resource, error) {
	if !gjson.ValidBytes(body) {
		return store.Resource{}, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-json", "request body is not valid JSON")
	}
	current, err := e.Store.Read(ctx, resourceType, id)
	nextVersion := int64(1)
	if err == nil {
		nextVersion = current.VersionID + 1
	}
	stamped, err2 := stampMeta(body, resourceType, id, nextVersion)
	if err2 != nil {
		return store.Resource{}, err2
	}
	ws := e.buildWriteSet(resourceType, id, stamped)
	res, err := e.Store.Update(ctx, resourceType, id, ws, ifMatchVersion)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.emitAudit(ctx, audit.ActionUpdate, resourceType, id, res.VersionID, outcome)
	if err == nil {
		e.publishChange(notify.ChangeUpdate, resourceType, id, res.VersionID)
	}
	return res, err
}

// PatchResource merges patch (a JSON merge-patch document) onto the
// current version and persists the result.
func (e *Engine) PatchResource(ctx context.Context, resourceType, id string, patch json.RawMessage, ifMatchVersion int64) (store.Resource, error) {
	current, err := e.Store.Read(ctx, resourceType, id)
	if err != nil {
		return store.Resource{}, err
	}
	merged, err := mergePatch(current.Document, patch)
	if err != nil {
		return store.Resource{}, err
	}
	stamped, err := stampMeta(merged, resourceType, id, current.VersionID+1)
	if err != nil {
		return store.Resource{}, err
	}
	ws := e.buildWriteSet(resourceType, id, stamped)
	res, err := e.Store.Patch(ctx, resourceType, id, ws, ifMatchVersion)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.emitAudit(ctx, audit.ActionUpdate, resourceType, id, res.VersionID, outcome)
	if err == nil {
		e.publishChange(notify.ChangeUpdate, resourceType, id, res.VersionID)
	}
	return res, err
}

// DeleteResource soft-deletes a resource.
func (e *Engine) DeleteResource(ctx context.Context, resourceType, id string) error {
	err := e.Store.Delete(ctx, resourceType, id)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.emitAudit(ctx, audit.ActionDelete, resourceType, id, 0, outcome)
	if err == nil {
		e.publishChange(notify.ChangeDelete, resourceType, id, 0)
	}
	return err
}

// ReadResource fetches the current version of a resource, auditing the
// access the same way writes are audited.
func (e *Engine) ReadResource(ctx context.Context, resourceType, id string) (store.Resource, error) {
	res, err := e.Store.Read(ctx, resourceType, id)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.emitAudit(ctx, audit.ActionRead, resourceType, id, res.VersionID, outcome)
	return res, err
}

// VReadResource fetches a specific historical version of a resource.
func (e *Engine) VReadResource(ctx context.Context, resourceType, id string, versionID int64) (store.Resource, error) {
	res, err := e.Store.VRead(ctx, resourceType, id, versionID)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.emitAudit(ctx, audit.ActionRead, resourceType, id, res.VersionID, outcome)
	return res, err
}

// stampMeta sets resourceType/id/meta.versionId/meta.lastUpdated on the
// document the way the server, not the client, owns these fields.
func stampMeta(body json.RawMessage, resourceType, id string, versionID int64) (json.RawMessage, error) {
	out, err := sjson.SetBytes(body, "resourceType", resourceType)
	if err != nil {
		return nil, fmt.Errorf("stamp resourceType: %w", err)
	}
	out, err = sjson.SetBytes(out, "id", id)
	if err != nil {
		return nil, fmt.Errorf("stamp id: %w", err)
	}
	out, err = sjson.SetBytes(out, "meta.versionId", fmt.Sprintf("%d", versionID))
	if err != nil {
		return nil, fmt.Errorf("stamp meta.versionId: %w", err)
	}
	out, err = sjson.SetBytes(out, "meta.lastUpdated", nowRFC3339())
	if err != nil {
		return nil, fmt.Errorf("stamp meta.lastUpdated: %w", err)
	}
	return out, nil
}

// mergePatch applies a JSON merge patch (RFC 7396): keys set to null are
// removed, object values recurse, everything else replaces wholesale.
func mergePatch(doc, patch json.RawMessage) (json.RawMessage, error) {
	if !gjson.ValidBytes(patch) {
		return nil, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-json", "patch body is not valid JSON")
	}
	result := doc
	patchObj := gjson.ParseBytes(patch)
	if !patchObj.IsObject() {
		return nil, fhirerr.New(fhirerr.KindMalformedRequest, "invalid-patch", "merge-patch body must be a JSON object")
	}
	var err error
	var apply func(prefix string, obj gjson.Result)
	apply = func(prefix string, obj gjson.Result) {
		obj.ForEach(func(key, val gjson.Result) bool {
			k := joinPath(prefix, key.String())
			if val.Type == gjson.Null {
				result, err = sjson.DeleteBytes(result, k)
			} else if val.IsObject() && gjson.GetBytes(result, k).IsObject() {
				apply(k, val)
			} else {
				result, err = sjson.SetRawBytes(result, k, []byte(val.Raw))
			}
			return err == nil
		})
	}
	apply("", patchObj)
	if err != nil {
		return nil, fmt.Errorf("apply merge patch: %w", err)
	}
	return result, nil
}
