package weave

import (
	"context"

	"github.com/309thEDDGE/weave/index"
)

// InvalidBasket names a storage address that could not be loaded as a
// basket during a scan.
type InvalidBasket struct {
	Address string
	Err     error
}

// SyncReport summarizes one full reconciliation pass.
type SyncReport struct {
	// Indexed counts the valid baskets upserted into the index.
	Indexed int
	// Invalid lists addresses that failed to load; they are not indexed.
	Invalid []InvalidBasket
	// Stale lists index rows whose basket no longer exists in storage.
	// They are reported, never deleted; explicit handling is the caller's.
	Stale []*index.Row
}

// EnsureIndexed populates the index from storage when the backend does not
// keep rows across processes. Persistent backends are left untouched; callers
// wanting a forced reconciliation use Sync directly.
func (p *Pantry) EnsureIndexed(ctx context.Context) error {
	if p.backend.GetCapabilities().Contains(index.CapabilityPersistent) {
		return nil
	}

	p.logger.Debug("index %q does not persist; rebuilding from storage", p.backend.Name())
	_, err := p.Sync(ctx)
	return err
}

// Sync performs a full storage scan and reconciles the index against it:
// every valid basket found in storage is upserted, invalid addresses are
// reported, and rows without a backing basket are flagged as stale.
// Calling Sync twice with no intervening storage change yields identical
// index contents.
func (p *Pantry) Sync(ctx context.Context) (*SyncReport, error) {
	addresses, err := p.scanAddresses(ctx)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	seen := make(map[string]struct{}, len(addresses))

	for _, address := range addresses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		view, err := p.reader.Load(ctx, address)
		if err != nil {
			report.Invalid = append(report.Invalid, InvalidBasket{Address: address, Err: err})
			p.logger.Debug("sync: skipping invalid basket at %s: %v", address, err)
			continue
		}

		if err := p.backend.Upsert(ctx, p.rowForManifest(view.Manifest, address)); err != nil {
			return nil, err
		}

		seen[view.Manifest.UUID] = struct{}{}
		report.Indexed++
	}

	rows, err := p.backend.Query(ctx, &index.Query{})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := seen[row.UUID]; !ok {
			report.Stale = append(report.Stale, row)
		}
	}

	if len(report.Invalid) > 0 || len(report.Stale) > 0 {
		p.logger.Warn("sync: %d baskets indexed, %d invalid, %d stale rows",
			report.Indexed, len(report.Invalid), len(report.Stale))
	}

	return report, nil
}
