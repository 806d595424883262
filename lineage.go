package weave

import (
	"context"
	"errors"

	"github.com/309thEDDGE/weave/index"
)

// LineageGraph answers parent/child queries over the index's parent-UUID
// column. It is a derived view; no separate graph structure is persisted.
// Lineage forms a DAG by convention, not enforcement, and traversal is one
// hop per call.
type LineageGraph struct {
	backend index.Backend
}

// Parents resolves the parent rows of uuid. Parents that have since been
// deleted are omitted, not errors.
func (g *LineageGraph) Parents(ctx context.Context, uuid string) ([]*index.Row, error) {
	row, err := g.backend.Get(ctx, uuid)
	if err != nil {
		return nil, err
	}

	parents := make([]*index.Row, 0, len(row.ParentUUIDs))
	for _, parentUUID := range row.ParentUUIDs {
		parent, err := g.backend.Get(ctx, parentUUID)
		if errors.Is(err, index.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}

	return parents, nil
}

// Children returns every row listing uuid among its parents.
func (g *LineageGraph) Children(ctx context.Context, uuid string) ([]*index.Row, error) {
	return g.backend.Query(ctx, &index.Query{ParentUUID: &uuid})
}
