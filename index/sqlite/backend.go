// Package sqlite implements the index backend on SQLite through the pure-Go
// modernc driver. Rows live in a pantry_index table keyed by UUID; parent
// edges are mirrored into a parent_uuids join table so child lookups are a
// single indexed query. Use ":memory:" for a throwaway index.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/309thEDDGE/weave/index"
)

type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at dbPath and ensures the
// index schema exists.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// The modernc driver serializes writes; a single connection avoids
	// table-lock errors under concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	backend := &SQLiteBackend{db: db}
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return backend, nil
}

func (sb *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pantry_index (
		uuid TEXT PRIMARY KEY,
		upload_time INTEGER NOT NULL,
		parent_uuids TEXT NOT NULL,
		basket_type TEXT NOT NULL,
		label TEXT,
		address TEXT NOT NULL,
		storage_type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pantry_index_basket_type ON pantry_index(basket_type);
	CREATE INDEX IF NOT EXISTS idx_pantry_index_upload_time ON pantry_index(upload_time);

	-- Reverse edges for lineage lookups
	CREATE TABLE IF NOT EXISTS parent_uuids (
		uuid TEXT NOT NULL,
		parent_uuid TEXT NOT NULL,
		PRIMARY KEY(uuid, parent_uuid)
	);
	CREATE INDEX IF NOT EXISTS idx_parent_uuids_parent ON parent_uuids(parent_uuid);
	`

	_, err := sb.db.Exec(schema)
	return err
}

// Name returns the identifier name defined for this backend.
func (*SQLiteBackend) Name() string {
	return "sqlite"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (sb *SQLiteBackend) Open(ctx context.Context) error {
	return sb.db.PingContext(ctx)
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (sb *SQLiteBackend) Close(ctx context.Context) error {
	return sb.db.Close()
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (sb *SQLiteBackend) GetCapabilities() *index.Capabilities {
	return &index.Capabilities{
		Capabilities: []index.Capability{
			index.CapabilityPersistent,
			index.CapabilityChildLookup,
		},
	}
}

func (sb *SQLiteBackend) Upsert(ctx context.Context, row *index.Row) error {
	parentsJSON, err := json.Marshal(row.ParentUUIDs)
	if err != nil {
		return err
	}

	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pantry_index (uuid, upload_time, parent_uuids, basket_type, label, address, storage_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			upload_time = excluded.upload_time,
			parent_uuids = excluded.parent_uuids,
			basket_type = excluded.basket_type,
			label = excluded.label,
			address = excluded.address,
			storage_type = excluded.storage_type
	`, row.UUID, row.UploadTime.Unix(), string(parentsJSON),
		row.BasketType, row.Label, row.Address, row.StorageType)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM parent_uuids WHERE uuid = ?", row.UUID); err != nil {
		return err
	}
	for _, parent := range row.ParentUUIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO parent_uuids (uuid, parent_uuid) VALUES (?, ?)",
			row.UUID, parent)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanRow(scan func(...any) error) (*index.Row, error) {
	var row index.Row
	var uploadTime int64
	var parentsJSON string
	var label sql.NullString

	if err := scan(&row.UUID, &uploadTime, &parentsJSON,
		&row.BasketType, &label, &row.Address, &row.StorageType); err != nil {
		return nil, err
	}

	row.UploadTime = time.Unix(uploadTime, 0).UTC()
	row.Label = label.String
	if err := json.Unmarshal([]byte(parentsJSON), &row.ParentUUIDs); err != nil {
		return nil, err
	}
	if row.ParentUUIDs == nil {
		row.ParentUUIDs = []string{}
	}

	return &row, nil
}

const selectColumns = "uuid, upload_time, parent_uuids, basket_type, label, address, storage_type"

func (sb *SQLiteBackend) Get(ctx context.Context, uuid string) (*index.Row, error) {
	row, err := scanRow(sb.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM pantry_index WHERE uuid = ?", uuid).Scan)
	if err == sql.ErrNoRows {
		return nil, index.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return row, nil
}

func (sb *SQLiteBackend) Query(ctx context.Context, query *index.Query) ([]*index.Row, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if query.BasketType != nil {
		clauses = append(clauses, "basket_type = ?")
		args = append(args, *query.BasketType)
	}
	if query.Label != nil {
		clauses = append(clauses, "label = ?")
		args = append(args, *query.Label)
	}
	if query.UploadedAfter != nil {
		clauses = append(clauses, "upload_time >= ?")
		args = append(args, query.UploadedAfter.Unix())
	}
	if query.UploadedBefore != nil {
		clauses = append(clauses, "upload_time <= ?")
		args = append(args, query.UploadedBefore.Unix())
	}
	if query.ParentUUID != nil {
		clauses = append(clauses, "uuid IN (SELECT uuid FROM parent_uuids WHERE parent_uuid = ?)")
		args = append(args, *query.ParentUUID)
	}

	sqlQuery := "SELECT " + selectColumns + " FROM pantry_index"
	if len(clauses) > 0 {
		sqlQuery += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := sb.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*index.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sorting and pagination share the in-memory helpers so every backend
	// agrees on ordering semantics.
	index.SortRows(results, query.SortBy, query.SortOrder)
	return index.Paginate(results, query.Limit, query.Offset), nil
}

func (sb *SQLiteBackend) Delete(ctx context.Context, uuid string) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM pantry_index WHERE uuid = ?", uuid)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return index.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM parent_uuids WHERE uuid = ?", uuid); err != nil {
		return err
	}

	return tx.Commit()
}

func (sb *SQLiteBackend) Len(ctx context.Context) (int, error) {
	var count int
	err := sb.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pantry_index").Scan(&count)
	return count, err
}
