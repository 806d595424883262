package basket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/309thEDDGE/weave/data"
	"github.com/309thEDDGE/weave/storage"
)

// Writer commits baskets to an ObjectStore. Every upload is staged under a
// hidden prefix and promoted in one atomic move, or, when the store has no
// atomic move, promoted object by object with the manifest strictly last.
// Either way a reader at the final address sees nothing or a complete
// basket.
type Writer struct {
	store     storage.ObjectStore
	integrity data.IntegrityComputer
}

func NewWriter(store storage.ObjectStore) *Writer {
	return &Writer{store: store}
}

// WriteRequest describes one basket to commit.
type WriteRequest struct {
	UploadItems []data.UploadItem
	BasketType  string
	ParentUUIDs []string
	Metadata    data.Metadata
	Label       string
}

// Committed describes a basket after successful promotion.
type Committed struct {
	UUID       string
	Address    string
	Manifest   *data.Manifest
	Supplement *data.Supplement
}

func (req *WriteRequest) validate() error {
	basketType := strings.TrimSpace(req.BasketType)
	if basketType == "" {
		return errors.New("weave: basket_type must not be empty")
	}
	if strings.ContainsAny(basketType, "/\\") || strings.HasPrefix(basketType, ".") {
		return fmt.Errorf("weave: invalid basket_type %q", req.BasketType)
	}

	if len(req.UploadItems) == 0 && (len(req.Metadata) == 0 || len(req.ParentUUIDs) == 0) {
		return ErrEmptyBasket
	}

	return nil
}

// Write runs the full commit protocol and returns the committed basket's
// identity and artifacts. The caller is responsible for registering the
// result with an index backend.
func (w *Writer) Write(ctx context.Context, req *WriteRequest) (*Committed, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	plan, err := expandItems(ctx, req.UploadItems)
	if err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	address := path.Join(req.BasketType, id)

	if err := w.checkCollision(ctx, address); err != nil {
		return nil, err
	}

	stage := path.Join(data.StagingPrefix, id)

	committed, err := w.stageAndPromote(ctx, req, plan, id, address, stage)
	if err != nil {
		// Cleanup must run even when ctx is already canceled. A failed
		// cleanup leaves hidden debris, so it is reported alongside the
		// original failure.
		cleanupCtx := context.WithoutCancel(ctx)
		cleanupErr := errors.Join(
			w.store.DeletePrefix(cleanupCtx, stage),
			w.store.DeletePrefix(cleanupCtx, address),
		)
		if cleanupErr != nil {
			err = fmt.Errorf("%w (cleanup incomplete: %v)", err, cleanupErr)
		}
		return nil, &UploadFailedError{BasketType: req.BasketType, UUID: id, Err: err}
	}

	return committed, nil
}

func (w *Writer) checkCollision(ctx context.Context, address string) error {
	stats, err := w.store.ListObjects(ctx, address, true)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(stats) > 0 {
		return fmt.Errorf("%w: %s", ErrCollision, address)
	}
	return nil
}

func (w *Writer) stageAndPromote(ctx context.Context, req *WriteRequest, plan []plannedFile, id, address, stage string) (*Committed, error) {
	supplement := &data.Supplement{UploadItems: []data.FileEntry{}}

	for _, file := range plan {
		entry, err := w.stageFile(ctx, file, address, stage)
		if err != nil {
			return nil, err
		}
		supplement.UploadItems = append(supplement.UploadItems, *entry)
	}

	parents := req.ParentUUIDs
	if parents == nil {
		parents = []string{}
	}
	manifest := &data.Manifest{
		UUID:        id,
		UploadTime:  time.Now().UTC().Truncate(time.Second),
		ParentUUIDs: parents,
		BasketType:  req.BasketType,
		Label:       req.Label,
	}

	// Artifact order matters: the manifest is the visibility gate, so it
	// is staged and promoted strictly last.
	if err := w.putJSON(ctx, path.Join(stage, data.SupplementFile), supplement); err != nil {
		return nil, err
	}
	if len(req.Metadata) > 0 {
		if err := w.putJSON(ctx, path.Join(stage, data.MetadataFile), req.Metadata); err != nil {
			return nil, err
		}
	}
	if err := w.putJSON(ctx, path.Join(stage, data.ManifestFile), manifest); err != nil {
		return nil, err
	}

	if err := w.promote(ctx, stage, address); err != nil {
		return nil, err
	}

	return &Committed{
		UUID:       id,
		Address:    address,
		Manifest:   manifest,
		Supplement: supplement,
	}, nil
}

// plannedFile is one file an upload will place into the basket, resolved
// from its upload item before any storage I/O.
type plannedFile struct {
	sourcePath string
	relKey     string
	stub       bool
}

// expandItems resolves every upload item to the files it will stage and
// rejects two different sources that would land on the same destination
// key, since the later copy would silently replace the earlier one.
// Repeating the same source stays legal: identical bytes are rewritten and
// every occurrence gets its own ledger entry. Directories are walked and
// keep their own name inside the basket.
func expandItems(ctx context.Context, items []data.UploadItem) ([]plannedFile, error) {
	planned := make([]plannedFile, 0, len(items))
	sources := make(map[string]string, len(items))

	add := func(sourcePath, relKey string, stub bool) error {
		if data.ProhibitedFilename(path.Base(relKey)) {
			return fmt.Errorf("%w: %s", ErrProhibitedFilename, sourcePath)
		}
		if !stub {
			if existing, taken := sources[relKey]; taken && existing != sourcePath {
				return fmt.Errorf("%w: %s and %s both map to %s",
					ErrDuplicateName, existing, sourcePath, relKey)
			}
			sources[relKey] = sourcePath
		}
		planned = append(planned, plannedFile{sourcePath: sourcePath, relKey: relKey, stub: stub})
		return nil
	}

	for _, item := range items {
		info, err := os.Stat(item.Path)
		if err != nil {
			return nil, fmt.Errorf("weave: upload item unreadable: %w", err)
		}

		if !info.IsDir() {
			if err := add(item.Path, filepath.Base(item.Path), item.Stub); err != nil {
				return nil, err
			}
			continue
		}

		// Upload paths of walked files stay relative to the item's parent
		// so the directory name itself survives inside the basket.
		base := filepath.Dir(item.Path)
		err = filepath.WalkDir(item.Path, func(walkPath string, dirEntry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if dirEntry.IsDir() {
				return ctx.Err()
			}

			rel, err := filepath.Rel(base, walkPath)
			if err != nil {
				return err
			}
			if err := add(walkPath, filepath.ToSlash(rel), item.Stub); err != nil {
				return err
			}
			return ctx.Err()
		})
		if err != nil {
			return nil, err
		}
	}

	return planned, nil
}

func (w *Writer) stageFile(ctx context.Context, file plannedFile, address, stage string) (*data.FileEntry, error) {
	entry := &data.FileEntry{
		UploadItemPath: file.sourcePath,
		AccessDate:     time.Now().UTC().Truncate(time.Second),
		IsStub:         file.stub,
	}

	if file.stub {
		// Record integrity of the referenced object without copying bytes.
		hash, size, err := w.integrity.ComputeFile(file.sourcePath)
		if err != nil {
			return nil, err
		}
		entry.Hash = hash
		entry.FileSize = size
		entry.UploadPath = "stub"
		return entry, nil
	}

	source, err := os.Open(file.sourcePath)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return nil, err
	}

	// One pass over the bytes: hash while copying into staging.
	tee := w.integrity.Tee(source)
	if err := w.store.PutObject(ctx, path.Join(stage, file.relKey), tee, info.Size()); err != nil {
		return nil, err
	}

	entry.Hash, entry.FileSize = tee.Sum()
	entry.UploadPath = path.Join(address, file.relKey)
	return entry, nil
}

func (w *Writer) putJSON(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return w.store.PutObject(ctx, key, bytes.NewReader(encoded), int64(len(encoded)))
}

// promote makes the staged tree visible at the final address. Stores with
// an atomic move expose the basket all at once; otherwise objects are
// copied individually with the manifest last, so the basket only becomes
// valid (manifest fetchable) once everything else is in place.
func (w *Writer) promote(ctx context.Context, stage, address string) error {
	if w.store.GetCapabilities().Contains(storage.CapabilityAtomicMove) {
		return w.store.MoveTree(ctx, stage, address)
	}

	staged, err := w.store.ListObjects(ctx, stage, true)
	if err != nil {
		return err
	}

	manifestKey := path.Join(stage, data.ManifestFile)
	for _, stat := range staged {
		if stat.IsPrefix || stat.Key == manifestKey {
			continue
		}
		rel := strings.TrimPrefix(stat.Key, stage+"/")
		if err := w.store.CopyObject(ctx, stat.Key, path.Join(address, rel)); err != nil {
			return err
		}
	}

	if err := w.store.CopyObject(ctx, manifestKey, path.Join(address, data.ManifestFile)); err != nil {
		return err
	}

	return w.store.DeletePrefix(ctx, stage)
}
