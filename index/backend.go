// Package index defines the backend-agnostic basket index contract.
//
// The index is a best-effort materialized view over the pantry's storage
// tree: one row per committed basket, keyed by UUID. It is never
// transactionally linked to storage; the pantry keeps it current through
// incremental upserts and full-scan reconciliation.
package index

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no row exists for a UUID.
var ErrNotFound = errors.New("index: basket not found")

// Row is one index entry, mirroring the basket's manifest plus its resolved
// storage location.
type Row struct {
	UUID        string    `json:"uuid"`
	UploadTime  time.Time `json:"upload_time"`
	ParentUUIDs []string  `json:"parent_uuids"`
	BasketType  string    `json:"basket_type"`
	Label       string    `json:"label"`
	Address     string    `json:"address"`
	StorageType string    `json:"storage_type"`
}

// Clone returns a deep copy so callers cannot mutate backend-owned rows.
func (r *Row) Clone() *Row {
	clone := *r
	clone.ParentUUIDs = append([]string(nil), r.ParentUUIDs...)
	return &clone
}

// HasParent reports whether uuid appears in the row's parent list.
func (r *Row) HasParent(uuid string) bool {
	for _, parent := range r.ParentUUIDs {
		if parent == uuid {
			return true
		}
	}
	return false
}

// Backend stores and queries index rows. Implementations must be safe for
// concurrent use within one process.
type Backend interface {
	// Name returns the identifier name defined for this backend.
	Name() string
	// Open is part of the lifecycle behaviour and gets called when opening this backend.
	Open(ctx context.Context) error
	// Close is part of the lifecycle behaviour and gets called when closing this backend.
	Close(ctx context.Context) error

	// GetCapabilities returns a list of capabilities supported by this backend.
	GetCapabilities() *Capabilities

	// Upsert inserts or overwrites the row keyed by its UUID. Idempotent.
	Upsert(ctx context.Context, row *Row) error

	// Get returns the row for uuid, or ErrNotFound.
	Get(ctx context.Context, uuid string) (*Row, error)

	// Query returns every row matching the query. Order is unspecified
	// unless the query names a sort field.
	Query(ctx context.Context, query *Query) ([]*Row, error)

	// Delete removes the row for uuid. Never touches storage.
	// Returns ErrNotFound if no row exists.
	Delete(ctx context.Context, uuid string) error

	// Len returns the number of rows in the index.
	Len(ctx context.Context) (int, error)
}

type Capability string

const (
	// CapabilityPersistent marks backends whose rows survive process restart.
	CapabilityPersistent Capability = "persistent"
	// CapabilityChildLookup marks backends that answer parent-UUID queries
	// natively instead of through a full scan.
	CapabilityChildLookup Capability = "child_lookup"
	// CapabilityShared marks backends usable by multiple processes at once.
	CapabilityShared Capability = "shared"
)

// Capabilities describes what a backend supports.
type Capabilities struct {
	Capabilities []Capability `json:"capabilities"`
}

// Contains checks if a capability is supported.
func (c *Capabilities) Contains(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}
