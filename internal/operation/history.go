package operation

import (
	"context"
	"time"

	"fhirstore/internal/store"
)

// History returns the full version history of one resource, newest first.
func (e *Engine) History(ctx context.Context, resourceType, id string) ([]store.HistoryEntry, error) {
	return e.Store.History(ctx, resourceType, id)
}

// TypeHistory returns the version history of every resource of
// resourceType updated at or after since (the zero time means unbounded).
func (e *Engine) TypeHistory(ctx context.Context, resourceType string, since time.Time) ([]store.HistoryEntry, error) {
	return e.Store.TypeHistory(ctx, resourceType, since)
}
