package store

import (
	"context"
	"time"
)

// ConditionalSelector is the parsed equivalent of an If-None-Exist / search
// clause used to drive conditional create/update/delete, kept abstract here
// since the Store only needs to hand it to the Query Compiler it is given.
type ConditionalSelector struct {
	ResourceType string
	RawQuery     string // the search query string, e.g. "identifier=http://x|123"
}

// Store is the persistence boundary for writes and resource reads. The
// Operation Layer depends on this interface, not on the postgres package,
// so its Store implementation can be swapped. The Query Compiler
// (internal/search) does not go through it: it imports the postgres package
// and queries the resource and index tables over the pool directly.
type Store interface {
	// Create inserts a brand-new resource at the caller-supplied id as
	// version 1; it does not generate ids. Returns a conflict error (via
	// fhirerr) if id already exists.
	Create(ctx context.Context, resourceType, id string, ws WriteSet) (Resource, error)

	// Update writes a new version of an existing resource, or creates it at
	// version 1 if it does not exist (FHIR's upsert-on-PUT semantics).
	// ifMatchVersion, when non-zero, enforces optimistic concurrency: the
	// current version must equal it or a fhirerr.VersionConflict error
	// (KindConflict) is returned.
	Update(ctx context.Context, resourceType, id string, ws WriteSet, ifMatchVersion int64) (Resource, error)

	// Patch applies ws (already the fully-merged document produced by the
	// caller) as a new version, with the same If-Match semantics as Update.
	Patch(ctx context.Context, resourceType, id string, ws WriteSet, ifMatchVersion int64) (Resource, error)

	// Delete soft-deletes the current version, recording a tombstone version.
	// Deleting an already-deleted or nonexistent resource is idempotent.
	Delete(ctx context.Context, resourceType, id string) error

	// Read returns the current version. fhirerr.Gone if soft-deleted,
	// fhirerr.NotFound if it never existed.
	Read(ctx context.Context, resourceType, id string) (Resource, error)

	// VRead returns a specific historical version, regardless of whether the
	// current version is deleted.
	VRead(ctx context.Context, resourceType, id string, versionID int64) (Resource, error)

	// History returns every version of one resource, newest first.
	History(ctx context.Context, resourceType, id string) ([]HistoryEntry, error)

	// TypeHistory returns every version of every resource of resourceType,
	// newest first, since (when non-zero) bounding the lower edge.
	TypeHistory(ctx context.Context, resourceType string, since time.Time) ([]HistoryEntry, error)

	// Tx returns the TransactionManager used to group several Store calls
	// (e.g. a Bundle's entries) into one atomic unit.
	Tx() TransactionManager
}

// Indexer converts a resource document into the rows a Store write needs,
// decoupling store.Store's signature from the index package to avoid an
// import cycle (index depends on store's types, not the other way round).
type Indexer interface {
	Extract(resourceType, id string, document []byte) []IndexRow
}
