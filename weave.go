// Package weave catalogs immutable baskets of data in an object store and
// maintains a queryable, backend-agnostic index of them with parent/child
// lineage.
//
// A Pantry composes a storage driver with an index backend. Baskets are
// committed through a staging-then-promote protocol, so a reader observing
// the final address sees either nothing or a complete basket. The index is
// a best-effort materialized view over storage, refreshed incrementally on
// every mutating operation and reconciled in full by Sync.
package weave

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/309thEDDGE/weave/basket"
	"github.com/309thEDDGE/weave/data"
	"github.com/309thEDDGE/weave/index"
	"github.com/309thEDDGE/weave/log"
	"github.com/309thEDDGE/weave/storage"
)

// Pantry is a storage root plus its index, constituting one managed data
// store. It holds no mutable state beyond the injected driver handles.
type Pantry struct {
	store   storage.ObjectStore
	backend index.Backend
	writer  *basket.Writer
	reader  *basket.Reader
	logger  *log.Logger
}

// New composes a pantry from a storage driver and an index backend. The
// backend may be empty; populate it with Sync when pointing at a storage
// root that already contains baskets.
func New(store storage.ObjectStore, backend index.Backend, opts ...Option) *Pantry {
	p := &Pantry{
		store:   store,
		backend: backend,
		writer:  basket.NewWriter(store),
		reader:  basket.NewReader(store),
		logger:  log.Discard(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Open opens the storage driver and index backend.
func (p *Pantry) Open(ctx context.Context) error {
	if err := p.store.Open(ctx); err != nil {
		return fmt.Errorf("weave: failed to open store %q: %w", p.store.Name(), err)
	}
	if err := p.backend.Open(ctx); err != nil {
		return fmt.Errorf("weave: failed to open index %q: %w", p.backend.Name(), err)
	}

	return nil
}

// Close releases both driver handles. The underlying storage tree is never
// cleaned up.
func (p *Pantry) Close(ctx context.Context) error {
	storeErr := p.store.Close(ctx)
	backendErr := p.backend.Close(ctx)
	return errors.Join(storeErr, backendErr)
}

// Upload commits a basket and registers it with the index.
//
// When the commit succeeds but the index upsert fails, the basket remains
// valid in storage and the committed descriptor is returned alongside an
// error wrapping ErrNotIndexed; storage is never rolled back, and a later
// Sync will pick the basket up.
func (p *Pantry) Upload(ctx context.Context, items []data.UploadItem, basketType string, opts ...UploadOption) (*basket.Committed, error) {
	req := &basket.WriteRequest{
		UploadItems: items,
		BasketType:  basketType,
	}
	for _, opt := range opts {
		opt(req)
	}

	committed, err := p.writer.Write(ctx, req)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("committed basket %s at %s", committed.UUID, committed.Address)

	if err := p.backend.Upsert(ctx, p.rowFor(committed)); err != nil {
		p.logger.Warn("basket %s committed but not indexed: %v", committed.UUID, err)
		return committed, fmt.Errorf("%w: %v", ErrNotIndexed, err)
	}

	return committed, nil
}

// GetBasket resolves uuid through the index and loads a read-only view.
func (p *Pantry) GetBasket(ctx context.Context, uuid string) (*basket.Basket, error) {
	row, err := p.backend.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}

	return p.reader.Load(ctx, row.Address)
}

// DeleteBasket removes the basket's storage tree, then its index row.
// Storage goes first: deleting the row first and then failing the storage
// delete would orphan data with no index trace. A failed index delete
// leaves a stale row that Validate reports.
func (p *Pantry) DeleteBasket(ctx context.Context, uuid string) error {
	row, err := p.backend.Get(ctx, uuid)
	if err != nil {
		return err
	}

	if err := p.store.DeletePrefix(ctx, row.Address); err != nil {
		return fmt.Errorf("weave: failed to delete basket %s from storage: %w", uuid, err)
	}

	if err := p.backend.Delete(ctx, uuid); err != nil && !errors.Is(err, index.ErrNotFound) {
		p.logger.Warn("basket %s deleted from storage but index row remains: %v", uuid, err)
		return fmt.Errorf("weave: basket %s deleted but index row remains: %w", uuid, err)
	}

	return nil
}

// Query runs a predicate query against the index.
func (p *Pantry) Query(ctx context.Context, query *index.Query) ([]*index.Row, error) {
	return p.backend.Query(ctx, query)
}

// Lineage returns the derived parent/child view over the index.
func (p *Pantry) Lineage() *LineageGraph {
	return &LineageGraph{backend: p.backend}
}

// Index exposes the underlying index backend.
func (p *Pantry) Index() index.Backend {
	return p.backend
}

// Store exposes the underlying storage driver.
func (p *Pantry) Store() storage.ObjectStore {
	return p.store
}

func (p *Pantry) rowFor(committed *basket.Committed) *index.Row {
	return p.rowForManifest(committed.Manifest, committed.Address)
}

func (p *Pantry) rowForManifest(manifest *data.Manifest, address string) *index.Row {
	return &index.Row{
		UUID:        manifest.UUID,
		UploadTime:  manifest.UploadTime,
		ParentUUIDs: manifest.ParentUUIDs,
		BasketType:  manifest.BasketType,
		Label:       manifest.Label,
		Address:     address,
		StorageType: p.store.Name(),
	}
}

// scanAddresses discovers candidate basket addresses at basket_type/uuid
// depth. Hidden prefixes (staging) and loose files are skipped.
func (p *Pantry) scanAddresses(ctx context.Context) ([]string, error) {
	roots, err := p.store.ListObjects(ctx, "", false)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	addresses := make([]string, 0)
	for _, root := range roots {
		if !root.IsPrefix || strings.HasPrefix(root.Key, ".") {
			continue
		}

		children, err := p.store.ListObjects(ctx, root.Key, false)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if !child.IsPrefix {
				continue
			}
			addresses = append(addresses, child.Key)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return addresses, nil
}
