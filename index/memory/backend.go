// Package memory implements the index backend as an in-process B-tree.
// Rows do not survive process restart; a fresh process repopulates the
// index through a pantry sync.
package memory

import (
	"context"
	"sync"

	"github.com/tidwall/btree"

	"github.com/309thEDDGE/weave/index"
)

type MemoryBackend struct {
	mu   sync.RWMutex
	rows *btree.Map[string, *index.Row]

	// children is a reverse index over parent UUIDs, maintained
	// incrementally so lineage queries avoid a full scan.
	children map[string]map[string]struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		rows:     btree.NewMap[string, *index.Row](0),
		children: make(map[string]map[string]struct{}),
	}
}

// Name returns the identifier name defined for this backend.
func (*MemoryBackend) Name() string {
	return "memory"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (mb *MemoryBackend) Open(ctx context.Context) error {
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (mb *MemoryBackend) Close(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.rows.Clear()
	mb.children = make(map[string]map[string]struct{})
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (mb *MemoryBackend) GetCapabilities() *index.Capabilities {
	return &index.Capabilities{
		Capabilities: []index.Capability{
			index.CapabilityChildLookup,
		},
	}
}

func (mb *MemoryBackend) Upsert(ctx context.Context, row *index.Row) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if previous, exists := mb.rows.Get(row.UUID); exists {
		mb.unlinkParents(previous)
	}

	stored := row.Clone()
	mb.rows.Set(stored.UUID, stored)
	for _, parent := range stored.ParentUUIDs {
		if mb.children[parent] == nil {
			mb.children[parent] = make(map[string]struct{})
		}
		mb.children[parent][stored.UUID] = struct{}{}
	}

	return nil
}

func (mb *MemoryBackend) unlinkParents(row *index.Row) {
	for _, parent := range row.ParentUUIDs {
		if kids, ok := mb.children[parent]; ok {
			delete(kids, row.UUID)
			if len(kids) == 0 {
				delete(mb.children, parent)
			}
		}
	}
}

func (mb *MemoryBackend) Get(ctx context.Context, uuid string) (*index.Row, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	row, exists := mb.rows.Get(uuid)
	if !exists {
		return nil, index.ErrNotFound
	}

	return row.Clone(), nil
}

func (mb *MemoryBackend) Query(ctx context.Context, query *index.Query) ([]*index.Row, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	// Parent filter resolves through the reverse index instead of a scan.
	if query.ParentUUID != nil {
		candidates := make([]*index.Row, 0)
		for uuid := range mb.children[*query.ParentUUID] {
			if row, exists := mb.rows.Get(uuid); exists {
				candidates = append(candidates, row.Clone())
			}
		}
		return index.ApplyFilters(candidates, query), nil
	}

	candidates := make([]*index.Row, 0, mb.rows.Len())
	mb.rows.Scan(func(_ string, row *index.Row) bool {
		candidates = append(candidates, row.Clone())
		return true
	})

	return index.ApplyFilters(candidates, query), nil
}

func (mb *MemoryBackend) Delete(ctx context.Context, uuid string) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	row, existed := mb.rows.Delete(uuid)
	if !existed {
		return index.ErrNotFound
	}

	mb.unlinkParents(row)
	return nil
}

func (mb *MemoryBackend) Len(ctx context.Context) (int, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	return mb.rows.Len(), nil
}
