package operation

import (
	"context"
	"net/url"
	"sync"
	"time"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/search"
	"fhirstore/internal/store"
)

// fakeStore is an in-memory store.Store used to exercise bundle/conditional
// logic without a real database.
type fakeStore struct {
	mu        sync.Mutex
	current   map[string]store.Resource   // "Type/id" -> current version
	history   map[string][]store.Resource // "Type/id" -> all versions, oldest first
	txManager store.TransactionManager
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		current: map[string]store.Resource{},
		history: map[string][]store.Resource{},
	}
}

func (s *fakeStore) key(t, id string) string { return t + "/" + id }

func (s *fakeStore) Create(ctx context.Context, resourceType, id string, ws store.WriteSet) (store.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(resourceType, id)
	if _, ok := s.current[k]; ok {
		return store.Resource{}, fhirerr.New(fhirerr.KindConflict, "duplicate", "already exists")
	}
	res := store.Resource{Type: resourceType, ID: id, VersionID: 1, LastUpdated: time.Now().UTC(), Document: ws.Document}
	s.current[k] = res
	s.history[k] = append(s.history[k], res)
	return res, nil
}

func (s *fakeStore) Update(ctx context.Context, resourceType, id string, ws store.WriteSet, ifMatchVersion int64) (store.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(resourceType, id)
	existing, ok := s.current[k]
	version := int64(1)
	if ok {
		if ifMatchVersion != 0 && existing.VersionID != ifMatchVersion {
			return store.Resource{}, fhirerr.VersionConflict(resourceType, id, existing.VersionID, ifMatchVersion)
		}
		version = existing.VersionID + 1
	}
	res := store.Resource{Type: resourceType, ID: id, VersionID: version, LastUpdated: time.Now().UTC(), Document: ws.Document}
	s.current[k] = res
	s.history[k] = append(s.history[k], res)
	return res, nil
}

func (s *fakeStore) Patch(ctx context.Context, resourceType, id string, ws store.WriteSet, ifMatchVersion int64) (store.Resource, error) {
	return s.Update(ctx, resourceType, id, ws, ifMatchVersion)
}

func (s *fakeStore) Delete(ctx context.Context, resourceType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(resourceType, id)
	existing, ok := s.current[k]
	if !ok || existing.Deleted {
		return nil
	}
	existing.Deleted = true
	existing.VersionID++
	existing.LastUpdated = time.Now().UTC()
	s.current[k] = existing
	s.history[k] = append(s.history[k], existing)
	return nil
}

func (s *fakeStore) Read(ctx context.Context, resourceType, id string) (store.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.current[s.key(resourceType, id)]
	if !ok {
		return store.Resource{}, fhirerr.NotFoundf(resourceType, id)
	}
	if res.Deleted {
		return store.Resource{}, fhirerr.Gonef(resourceType, id)
	}
	return res, nil
}

func (s *fakeStore) VRead(ctx context.Context, resourceType, id string, versionID int64) (store.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.history[s.key(resourceType, id)] {
		if v.VersionID == versionID {
			return v, nil
		}
	}
	return store.Resource{}, fhirerr.NotFoundf(resourceType, id)
}

func (s *fakeStore) History(ctx context.Context, resourceType, id string) ([]store.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.history[s.key(resourceType, id)]
	out := make([]store.HistoryEntry, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		out = append(out, store.HistoryEntry{Resource: versions[i]})
	}
	return out, nil
}

func (s *fakeStore) TypeHistory(ctx context.Context, resourceType string, since time.Time) ([]store.HistoryEntry, error) {
	return nil, nil
}

func (s *fakeStore) Tx() store.TransactionManager {
	if s.txManager == nil {
		s.txManager = fakeTxManager{store: s}
	}
	return s.txManager
}

// fakeTxManager snapshots the store before running fn and restores it on
// error, standing in for a real transaction's rollback.
type fakeTxManager struct{ store *fakeStore }

func (m fakeTxManager) ExecTx(ctx context.Context, fn store.TxFn) error {
	m.store.mu.Lock()
	currentSnapshot := make(map[string]store.Resource, len(m.store.current))
	for k, v := range m.store.current {
		currentSnapshot[k] = v
	}
	historySnapshot := make(map[string][]store.Resource, len(m.store.history))
	for k, v := range m.store.history {
		historySnapshot[k] = append([]store.Resource(nil), v...)
	}
	m.store.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.store.mu.Lock()
		m.store.current = currentSnapshot
		m.store.history = historySnapshot
		m.store.mu.Unlock()
		return err
	}
	return nil
}

// fakeSearcher returns a fixed, pre-seeded result regardless of query,
// letting conditional-create/update/delete tests control match count
// without a real SQL backend.
type fakeSearcher struct {
	resources []store.Resource
}

func (s *fakeSearcher) Search(ctx context.Context, resourceType string, rawQuery url.Values, strictness search.Strictness) (*search.Query, *search.Result, error) {
	return &search.Query{ResourceType: resourceType}, &search.Result{Resources: s.resources, Total: -1}, nil
}
