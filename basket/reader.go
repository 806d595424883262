package basket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/309thEDDGE/weave/data"
	"github.com/309thEDDGE/weave/storage"
)

// Basket is a read-only view of a committed basket.
type Basket struct {
	Address    string
	Manifest   *data.Manifest
	Supplement *data.Supplement
	// Metadata is nil when the basket carries no basket_metadata.json.
	Metadata data.Metadata

	store storage.ObjectStore
}

// Reader loads and validates committed baskets. Read operations never
// mutate storage.
type Reader struct {
	store storage.ObjectStore
}

func NewReader(store storage.ObjectStore) *Reader {
	return &Reader{store: store}
}

// Load reads the three artifacts at address and returns a validated view.
// A missing or malformed manifest or supplement yields InvalidBasketError.
func (r *Reader) Load(ctx context.Context, address string) (*Basket, error) {
	manifest := &data.Manifest{}
	manifestKey := path.Join(address, data.ManifestFile)
	if err := r.getJSON(ctx, manifestKey, manifest); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, &InvalidBasketError{
				Address: address,
				Reason:  fmt.Sprintf("manifest does not exist at %s", manifestKey),
				Err:     err,
			}
		}
		return nil, &InvalidBasketError{Address: address, Reason: "malformed manifest", Err: err}
	}

	if field := manifest.Validate(); field != "" {
		return nil, &InvalidBasketError{
			Address: address,
			Reason:  fmt.Sprintf("manifest missing required field %q", field),
		}
	}

	supplement := &data.Supplement{}
	if err := r.getJSON(ctx, path.Join(address, data.SupplementFile), supplement); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, &InvalidBasketError{Address: address, Reason: "supplement does not exist", Err: err}
		}
		return nil, &InvalidBasketError{Address: address, Reason: "malformed supplement", Err: err}
	}

	view := &Basket{
		Address:    address,
		Manifest:   manifest,
		Supplement: supplement,
		store:      r.store,
	}

	metadata := data.Metadata{}
	err := r.getJSON(ctx, path.Join(address, data.MetadataFile), &metadata)
	switch {
	case err == nil:
		view.Metadata = metadata
	case errors.Is(err, storage.ErrNotExist):
		// Metadata is optional.
	default:
		return nil, &InvalidBasketError{Address: address, Reason: "malformed metadata", Err: err}
	}

	return view, nil
}

func (r *Reader) getJSON(ctx context.Context, key string, value any) error {
	object, err := r.store.GetObject(ctx, key)
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

// Ls lists the basket's data files, excluding the three artifact files.
func (b *Basket) Ls(ctx context.Context) ([]*storage.ObjectStat, error) {
	stats, err := b.store.ListObjects(ctx, b.Address, false)
	if err != nil {
		return nil, err
	}

	files := make([]*storage.ObjectStat, 0, len(stats))
	for _, stat := range stats {
		if data.ProhibitedFilename(path.Base(stat.Key)) {
			continue
		}
		files = append(files, stat)
	}

	return files, nil
}

// Open returns a reader over one data file inside the basket. The key is
// relative to the basket address.
func (b *Basket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.store.GetObject(ctx, path.Join(b.Address, key))
}
