package weave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/309thEDDGE/weave/data"
	"github.com/309thEDDGE/weave/index"
	"github.com/309thEDDGE/weave/storage"
)

type WarningCode string

const (
	WarnMissingManifest     WarningCode = "missing_manifest"
	WarnMalformedManifest   WarningCode = "malformed_manifest"
	WarnMissingField        WarningCode = "manifest_missing_field"
	WarnMissingSupplement   WarningCode = "missing_supplement"
	WarnMalformedSupplement WarningCode = "malformed_supplement"
	WarnMalformedMetadata   WarningCode = "malformed_metadata"
	WarnMissingFile         WarningCode = "missing_file"
	WarnUnlistedFile        WarningCode = "unlisted_file"
	WarnChecksumMismatch    WarningCode = "checksum_mismatch"
	WarnDuplicateUUID       WarningCode = "duplicate_uuid"
	WarnStaleIndexRow       WarningCode = "stale_index_row"
	WarnOrphanedParent      WarningCode = "orphaned_parent"
)

// Warning is one validation finding. Warnings are collected, never raised:
// one corrupt basket must not block visibility into the rest of the pantry.
type Warning struct {
	Code    WarningCode
	Address string
	Message string
}

func (w Warning) String() string {
	return w.Message
}

// Validate walks every basket address in storage, cross-checks the three
// artifacts and the supplement's file ledger, and reconciles against the
// index. It aggregates all findings and returns them.
func (p *Pantry) Validate(ctx context.Context, opts ...ValidateOption) ([]Warning, error) {
	options := &validateOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addresses, err := p.scanAddresses(ctx)
	if err != nil {
		return nil, err
	}

	warnings := make([]Warning, 0)
	// uuid -> first address seen, for duplicate detection
	uuidAddresses := make(map[string]string, len(addresses))
	// parent uuid -> one basket address referencing it
	parentRefs := make(map[string]string)

	for _, address := range addresses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		manifest, basketWarnings := p.validateBasket(ctx, address, options)
		warnings = append(warnings, basketWarnings...)
		if manifest == nil {
			continue
		}

		if firstAddress, seen := uuidAddresses[manifest.UUID]; seen {
			warnings = append(warnings, Warning{
				Code:    WarnDuplicateUUID,
				Address: address,
				Message: fmt.Sprintf("Duplicate basket UUID %s found at %s and %s",
					manifest.UUID, firstAddress, address),
			})
		} else {
			uuidAddresses[manifest.UUID] = address
		}

		for _, parent := range manifest.ParentUUIDs {
			parentRefs[parent] = address
		}
	}

	// Parents must resolve in storage or the index; dangling references are
	// tolerated but reported.
	for parent, referencedBy := range parentRefs {
		if _, inStorage := uuidAddresses[parent]; inStorage {
			continue
		}
		if _, err := p.backend.Get(ctx, parent); err == nil {
			continue
		} else if !errors.Is(err, index.ErrNotFound) {
			return nil, err
		}
		warnings = append(warnings, Warning{
			Code:    WarnOrphanedParent,
			Address: referencedBy,
			Message: fmt.Sprintf("Parent basket %s referenced by %s was not found", parent, referencedBy),
		})
	}

	// Index rows with no corresponding storage basket are stale.
	rows, err := p.backend.Query(ctx, &index.Query{})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := uuidAddresses[row.UUID]; !ok {
			warnings = append(warnings, Warning{
				Code:    WarnStaleIndexRow,
				Address: row.Address,
				Message: fmt.Sprintf("Index row %s has no basket in storage at %s", row.UUID, row.Address),
			})
		}
	}

	return warnings, nil
}

// validateBasket checks one basket address and returns its manifest when
// parseable, plus any findings.
func (p *Pantry) validateBasket(ctx context.Context, address string, options *validateOptions) (*data.Manifest, []Warning) {
	warnings := make([]Warning, 0)

	manifestKey := path.Join(address, data.ManifestFile)
	manifest := &data.Manifest{}
	if err := p.fetchJSON(ctx, manifestKey, manifest); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, append(warnings, Warning{
				Code:    WarnMissingManifest,
				Address: address,
				Message: fmt.Sprintf("Invalid basket. Manifest does not exist at %s", address),
			})
		}
		return nil, append(warnings, Warning{
			Code:    WarnMalformedManifest,
			Address: address,
			Message: fmt.Sprintf("Invalid basket. Manifest could not be parsed at %s: %v", address, err),
		})
	}

	if field := manifest.Validate(); field != "" {
		warnings = append(warnings, Warning{
			Code:    WarnMissingField,
			Address: address,
			Message: fmt.Sprintf("Invalid basket. Manifest at %s is missing required field %q", address, field),
		})
	}

	supplement := &data.Supplement{}
	if err := p.fetchJSON(ctx, path.Join(address, data.SupplementFile), supplement); err != nil {
		code := WarnMalformedSupplement
		detail := fmt.Sprintf("Supplement could not be parsed at %s: %v", address, err)
		if errors.Is(err, storage.ErrNotExist) {
			code = WarnMissingSupplement
			detail = fmt.Sprintf("Supplement does not exist at %s", address)
		}
		warnings = append(warnings, Warning{Code: code, Address: address, Message: "Invalid basket. " + detail})
	} else {
		warnings = append(warnings, p.validateSupplement(ctx, address, supplement, options)...)
	}

	metadata := data.Metadata{}
	if err := p.fetchJSON(ctx, path.Join(address, data.MetadataFile), &metadata); err != nil &&
		!errors.Is(err, storage.ErrNotExist) {
		warnings = append(warnings, Warning{
			Code:    WarnMalformedMetadata,
			Address: address,
			Message: fmt.Sprintf("Invalid basket. Metadata could not be parsed at %s: %v", address, err),
		})
	}

	return manifest, warnings
}

// validateSupplement cross-checks the integrity ledger against the files
// actually present under the basket address, in both directions.
func (p *Pantry) validateSupplement(ctx context.Context, address string, supplement *data.Supplement, options *validateOptions) []Warning {
	warnings := make([]Warning, 0)

	stats, err := p.store.ListObjects(ctx, address, true)
	if err != nil {
		return append(warnings, Warning{
			Code:    WarnMissingFile,
			Address: address,
			Message: fmt.Sprintf("Could not list basket files at %s: %v", address, err),
		})
	}

	present := make(map[string]struct{}, len(stats))
	for _, stat := range stats {
		if stat.IsPrefix || data.ProhibitedFilename(path.Base(stat.Key)) {
			continue
		}
		present[stat.Key] = struct{}{}
	}

	listed := make(map[string]struct{}, len(supplement.UploadItems))
	for _, entry := range supplement.UploadItems {
		if entry.IsStub {
			continue
		}
		listed[entry.UploadPath] = struct{}{}

		if _, ok := present[entry.UploadPath]; !ok {
			warnings = append(warnings, Warning{
				Code:    WarnMissingFile,
				Address: address,
				Message: fmt.Sprintf("File listed in supplement does not exist in storage: %s", entry.UploadPath),
			})
			continue
		}

		if options.deepIntegrity {
			if w := p.recomputeEntry(ctx, address, entry); w != nil {
				warnings = append(warnings, *w)
			}
		}
	}

	for key := range present {
		if _, ok := listed[key]; !ok {
			warnings = append(warnings, Warning{
				Code:    WarnUnlistedFile,
				Address: address,
				Message: fmt.Sprintf("File found in storage is not listed in supplement: %s", key),
			})
		}
	}

	return warnings
}

func (p *Pantry) recomputeEntry(ctx context.Context, address string, entry data.FileEntry) *Warning {
	object, err := p.store.GetObject(ctx, entry.UploadPath)
	if err != nil {
		return &Warning{
			Code:    WarnMissingFile,
			Address: address,
			Message: fmt.Sprintf("Could not open %s for integrity check: %v", entry.UploadPath, err),
		}
	}
	defer object.Close()

	var computer data.IntegrityComputer
	hash, size, err := computer.Compute(object)
	if err != nil {
		return &Warning{
			Code:    WarnChecksumMismatch,
			Address: address,
			Message: fmt.Sprintf("Could not hash %s: %v", entry.UploadPath, err),
		}
	}

	if hash != entry.Hash || size != entry.FileSize {
		return &Warning{
			Code:    WarnChecksumMismatch,
			Address: address,
			Message: fmt.Sprintf("Integrity mismatch for %s: recorded %s/%d bytes, found %s/%d bytes",
				entry.UploadPath, entry.Hash, entry.FileSize, hash, size),
		}
	}

	return nil
}

func (p *Pantry) fetchJSON(ctx context.Context, key string, value any) error {
	object, err := p.store.GetObject(ctx, key)
	if err != nil {
		return err
	}
	defer object.Close()

	encoded, err := io.ReadAll(object)
	if err != nil {
		return err
	}

	return json.Unmarshal(encoded, value)
}
