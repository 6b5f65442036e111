package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fhirstore/internal/fhirerr"
	"fhirstore/internal/store"
)

// ResourceRepository is the postgres implementation of store.Store: one
// canonical row per resource, a full version history, and one table per
// typed index-value variant, written atomically so a document and its
// index rows commit together or not at all.
type ResourceRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	tx     store.TransactionManager
	log    *slog.Logger
}

// NewResourceRepository builds a ResourceRepository over cfg.
func NewResourceRepository(cfg RepositoryConfig) *ResourceRepository {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &ResourceRepository{
		pool:   cfg.Pool,
		tables: cfg.Tables,
		tx:     NewTransactionManager(cfg.Pool),
		log:    log,
	}
}

func (r *ResourceRepository) Tx() store.TransactionManager { return r.tx }

func (r *ResourceRepository) Create(ctx context.Context, resourceType, id string, ws store.WriteSet) (store.Resource, error) {
	var out store.Resource
	err := r.tx.ExecTx(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, r.pool)
		var existing bool
		err := exec.QueryRow(ctx, fmt.Sprintf(
			`SELECT EXISTS(SELECT 1 FROM %s WHERE resource_type=$1 AND id=$2)`, r.tables.Resources,
		), resourceType, id).Scan(&existing)
		if err != nil {
			return fmt.Errorf("check existing: %w", err)
		}
		if existing {
			return fhirerr.New(fhirerr.KindConflict, "duplicate", fmt.Sprintf("%s/%s already exists", resourceType, id))
		}
		now := time.Now().UTC()
		res := store.Resource{Type: resourceType, ID: id, VersionID: 1, LastUpdated: now, Document: ws.Document}
		if err := r.writeVersion(ctx, res, ws.Rows, true); err != nil {
			// The EXISTS check above is a TOCTOU race: a concurrent Create for
			// the same resource_type/id can commit between it and this INSERT.
			// The resources table's primary key turns that race into a unique
			// violation here rather than a silent double-write; surface it the
			// same way the pre-check does instead of the raw driver error.
			if IsPgDuplicateError(err) {
				return fhirerr.New(fhirerr.KindConflict, "duplicate", fmt.Sprintf("%s/%s already exists", resourceType, id))
			}
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (r *ResourceRepository) Update(ctx context.Context, resourceType, id string, ws store.WriteSet, ifMatchVersion int64) (store.Resource, error) {
	var out store.Resource
	err := r.tx.ExecTx(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, r.pool)
		var currentVersion int64
		var deleted bool
		err := exec.QueryRow(ctx, fmt.Sprintf(
			`SELECT current_version, deleted FROM %s WHERE resource_type=$1 AND id=$2`, r.tables.Resources,
		), resourceType, id).Scan(&currentVersion, &deleted)

		isCreate := IsPgNoRowsError(err)
		if err != nil && !isCreate {
			return fmt.Errorf("read current version: %w", err)
		}
		if !isCreate && ifMatchVersion != 0 && currentVersion != ifMatchVersion {
			return fhirerr.VersionConflict(resourceType, id, currentVersion, ifMatchVersion)
		}

		now := time.Now().UTC()
		nextVersion := int64(1)
		if !isCreate {
			nextVersion = currentVersion + 1
		}
		res := store.Resource{Type: resourceType, ID: id, VersionID: nextVersion, LastUpdated: now, Document: ws.Document}
		if err := r.writeVersion(ctx, res, ws.Rows, isCreate); err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (r *ResourceRepository) Patch(ctx context.Context, resourceType, id string, ws store.WriteSet, ifMatchVersion int64) (store.Resource, error) {
	// Patch always targets an existing resource; reuse Update's optimistic
	// concurrency path but require the resource to already exist.
	var out store.Resource
	err := r.tx.ExecTx(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, r.pool)
		var currentVersion int64
		var deleted bool
		err := exec.QueryRow(ctx, fmt.Sprintf(
			`SELECT current_version, deleted FROM %s WHERE resource_type=$1 AND id=$2`, r.tables.Resources,
		), resourceType, id).Scan(&currentVersion, &deleted)
		if IsPgNoRowsError(err) {
			return fhirerr.NotFoundf(resourceType, id)
		}
		if err != nil {
			return fmt.Errorf("read current version: %w", err)
		}
		if deleted {
			return fhirerr.Gonef(resourceType, id)
		}
		if ifMatchVersion != 0 && currentVersion != ifMatchVersion {
			return fhirerr.VersionConflict(resourceType, id, currentVersion, ifMatchVersion)
		}
		now := time.Now().UTC()
		res := store.Resource{Type: resourceType, ID: id, VersionID: currentVersion + 1, LastUpdated: now, Document: ws.Document}
		if err := r.writeVersion(ctx, res, ws.Rows, false); err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (r *ResourceRepository) Delete(ctx context.Context, resourceType, id string) error {
	return r.tx.ExecTx(ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, r.pool)
		var currentVersion int64
		var deleted bool
		err := exec.QueryRow(ctx, fmt.Sprintf(
			`SELECT current_version, deleted FROM %s WHERE resource_type=$1 AND id=$2`, r.tables.Resources,
		), resourceType, id).Scan(&currentVersion, &deleted)
		if IsPgNoRowsError(err) {
			return nil // deleting a resource that never existed is a no-op
		}
		if err != nil {
			return fmt.Errorf("read current version: %w", err)
		}
		if deleted {
			return nil // idempotent
		}

		now := time.Now().UTC()
		nextVersion := currentVersion + 1

		if err := r.deleteIndexRows(ctx, resourceType, id); err != nil {
			return err
		}
		_, err = exec.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (resource_type, id, version_id, deleted, last_updated, document)
			 VALUES ($1,$2,$3,true,$4,'{}'::jsonb)`, r.tables.ResourceVersions,
		), resourceType, id, nextVersion, now)
		if err != nil {
			return fmt.Errorf("insert tombstone version: %w", err)
		}
		_, err = exec.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET current_version=$3, deleted=true, last_updated=$4, document='{}'::jsonb
			 WHERE resource_type=$1 AND id=$2`, r.tables.Resources,
		), resourceType, id, nextVersion, now)
		if err != nil {
			return fmt.Errorf("update resource tombstone: %w", err)
		}
		return nil
	})
}

func (r *ResourceRepository) Read(ctx context.Context, resourceType, id string) (store.Resource, error) {
	exec := GetExecutor(ctx, r.pool)
	var res store.Resource
	res.Type, res.ID = resourceType, id
	err := exec.QueryRow(ctx, fmt.Sprintf(
		`SELECT current_version, deleted, last_updated, document FROM %s WHERE resource_type=$1 AND id=$2`,
		r.tables.Resources,
	), resourceType, id).Scan(&res.VersionID, &res.Deleted, &res.LastUpdated, &res.Document)
	if IsPgNoRowsError(err) {
		return store.Resource{}, fhirerr.NotFoundf(resourceType, id)
	}
	if err != nil {
		return store.Resource{}, fmt.Errorf("read resource: %w", err)
	}
	if res.Deleted {
		return store.Resource{}, fhirerr.Gonef(resourceType, id)
	}
	return res, nil
}

func (r *ResourceRepository) VRead(ctx context.Context, resourceType, id string, versionID int64) (store.Resource, error) {
	exec := GetExecutor(ctx, r.pool)
	var res store.Resource
	res.Type, res.ID, res.VersionID = resourceType, id, versionID
	err := exec.QueryRow(ctx, fmt.Sprintf(
		`SELECT deleted, last_updated, document FROM %s WHERE resource_type=$1 AND id=$2 AND version_id=$3`,
		r.tables.ResourceVersions,
	), resourceType, id, versionID).Scan(&res.Deleted, &res.LastUpdated, &res.Document)
	if IsPgNoRowsError(err) {
		return store.Resource{}, fhirerr.NotFoundf(resourceType, id)
	}
	if err != nil {
		return store.Resource{}, fmt.Errorf("read resource version: %w", err)
	}
	return res, nil
}

func (r *ResourceRepository) History(ctx context.Context, resourceType, id string) ([]store.HistoryEntry, error) {
	exec := GetExecutor(ctx, r.pool)
	rows, err := exec.Query(ctx, fmt.Sprintf(
		`SELECT version_id, deleted, last_updated, document FROM %s
		 WHERE resource_type=$1 AND id=$2 ORDER BY version_id DESC`, r.tables.ResourceVersions,
	), resourceType, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []store.HistoryEntry
	for rows.Next() {
		var res store.Resource
		res.Type, res.ID = resourceType, id
		if err := rows.Scan(&res.VersionID, &res.Deleted, &res.LastUpdated, &res.Document); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, historyEntry(res))
	}
	return entries, rows.Err()
}

func (r *ResourceRepository) TypeHistory(ctx context.Context, resourceType string, since time.Time) ([]store.HistoryEntry, error) {
	exec := GetExecutor(ctx, r.pool)
	query := fmt.Sprintf(
		`SELECT id, version_id, deleted, last_updated, document FROM %s
		 WHERE resource_type=$1 AND last_updated >= $2 ORDER BY last_updated DESC`, r.tables.ResourceVersions)
	rows, err := exec.Query(ctx, query, resourceType, since)
	if err != nil {
		return nil, fmt.Errorf("query type history: %w", err)
	}
	defer rows.Close()

	var entries []store.HistoryEntry
	for rows.Next() {
		var res store.Resource
		res.Type = resourceType
		if err := rows.Scan(&res.ID, &res.VersionID, &res.Deleted, &res.LastUpdated, &res.Document); err != nil {
			return nil, fmt.Errorf("scan type history row: %w", err)
		}
		entries = append(entries, historyEntry(res))
	}
	return entries, rows.Err()
}

func historyEntry(res store.Resource) store.HistoryEntry {
	method := "PUT"
	if res.VersionID == 1 {
		method = "POST"
	}
	if res.Deleted {
		method = "DELETE"
	}
	return store.HistoryEntry{
		Resource: res,
		Method:   method,
		URL:      fmt.Sprintf("%s/%s", res.Type, res.ID),
	}
}

// writeVersion inserts the new version row, upserts the canonical row, and
// replaces the index rows, all within the caller's transaction.
func (r *ResourceRepository) writeVersion(ctx context.Context, res store.Resource, rows []store.IndexRow, isCreate bool) error {
	exec := GetExecutor(ctx, r.pool)

	_, err := exec.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (resource_type, id, version_id, deleted, last_updated, document)
		 VALUES ($1,$2,$3,false,$4,$5)`, r.tables.ResourceVersions,
	), res.Type, res.ID, res.VersionID, res.LastUpdated, res.Document)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if isCreate {
		_, err = exec.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (resource_type, id, current_version, deleted, last_updated, document)
			 VALUES ($1,$2,$3,false,$4,$5)`, r.tables.Resources,
		), res.Type, res.ID, res.VersionID, res.LastUpdated, res.Document)
	} else {
		_, err = exec.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET current_version=$3, deleted=false, last_updated=$4, document=$5
			 WHERE resource_type=$1 AND id=$2`, r.tables.Resources,
		), res.Type, res.ID, res.VersionID, res.LastUpdated, res.Document)
	}
	if err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}

	if err := r.deleteIndexRows(ctx, res.Type, res.ID); err != nil {
		return err
	}
	return r.insertIndexRows(ctx, res.Type, res.ID, rows)
}

func (r *ResourceRepository) deleteIndexRows(ctx context.Context, resourceType, id string) error {
	exec := GetExecutor(ctx, r.pool)
	tables := []string{
		r.tables.IndexToken, r.tables.IndexString, r.tables.IndexDate, r.tables.IndexReference,
		r.tables.IndexQuantity, r.tables.IndexNumber, r.tables.IndexURI, r.tables.IndexGeo,
	}
	for _, t := range tables {
		if _, err := exec.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE resource_type=$1 AND id=$2`, t), resourceType, id); err != nil {
			return fmt.Errorf("delete index rows from %s: %w", t, err)
		}
	}
	return nil
}

func (r *ResourceRepository) insertIndexRows(ctx context.Context, resourceType, id string, rows []store.IndexRow) error {
	exec := GetExecutor(ctx, r.pool)
	for _, row := range rows {
		var err error
		switch row.Kind {
		case store.KindToken:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, system, code, text) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				r.tables.IndexToken,
			), resourceType, id, row.Param, row.Occurrence, row.Token.System, row.Token.Code, row.Token.Text)
		case store.KindString:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, normalized, original) VALUES ($1,$2,$3,$4,$5,$6)`,
				r.tables.IndexString,
			), resourceType, id, row.Param, row.Occurrence, row.String.Normalized, row.String.Original)
		case store.KindDate:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, instant, precision, is_range_end) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				r.tables.IndexDate,
			), resourceType, id, row.Param, row.Occurrence, row.Date.Instant, string(row.Date.Precision), row.Date.IsRangeEnd)
		case store.KindReference:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, target_type, target_id, absolute, urn) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				r.tables.IndexReference,
			), resourceType, id, row.Param, row.Occurrence, row.Reference.TargetType, row.Reference.TargetID, row.Reference.Absolute, row.Reference.URN)
		case store.KindQuantity:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, value, system, code, unit, normalized_value, normalized_dimension, has_normalized)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				r.tables.IndexQuantity,
			), resourceType, id, row.Param, row.Occurrence, row.Quantity.Value, row.Quantity.System, row.Quantity.Code, row.Quantity.Unit,
				row.Quantity.NormalizedValue, row.Quantity.NormalizedDimension, row.Quantity.HasNormalized)
		case store.KindNumber:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, value) VALUES ($1,$2,$3,$4,$5)`,
				r.tables.IndexNumber,
			), resourceType, id, row.Param, row.Occurrence, *row.Number)
		case store.KindURI:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, value) VALUES ($1,$2,$3,$4,$5)`,
				r.tables.IndexURI,
			), resourceType, id, row.Param, row.Occurrence, *row.URI)
		case store.KindGeo:
			_, err = exec.Exec(ctx, fmt.Sprintf(
				`INSERT INTO %s (resource_type, id, param, occurrence, latitude, longitude) VALUES ($1,$2,$3,$4,$5,$6)`,
				r.tables.IndexGeo,
			), resourceType, id, row.Param, row.Occurrence, row.Geo.Latitude, row.Geo.Longitude)
		default:
			r.log.Warn("unknown index row kind, skipping", "kind", row.Kind, "param", row.Param)
			continue
		}
		if err != nil {
			return fmt.Errorf("insert %s index row for %s: %w", row.Kind, row.Param, err)
		}
	}
	return nil
}
