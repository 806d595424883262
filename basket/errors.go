package basket

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBasket rejects uploads carrying neither files nor
	// metadata-with-lineage. Checked before any storage I/O.
	ErrEmptyBasket = errors.New("weave: basket must carry upload items or metadata with parents")

	// ErrCollision reports that a freshly generated UUID already has a
	// basket at its derived address.
	ErrCollision = errors.New("weave: basket address already occupied")

	// ErrProhibitedFilename rejects upload items named after a basket
	// artifact file.
	ErrProhibitedFilename = errors.New("weave: filename reserved for basket artifacts")

	// ErrDuplicateName rejects two different sources that would occupy
	// the same file name inside one basket. Checked before any storage
	// I/O.
	ErrDuplicateName = errors.New("weave: file and folder names inside a basket must be unique")
)

// InvalidBasketError reports a basket whose artifacts are missing or
// malformed at a given address.
type InvalidBasketError struct {
	Address string
	Reason  string
	Err     error
}

func (e *InvalidBasketError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("weave: invalid basket at %s: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("weave: invalid basket at %s: %s", e.Address, e.Reason)
}

func (e *InvalidBasketError) Unwrap() error {
	return e.Err
}

// UploadFailedError wraps any failure during staging or promotion. When it
// is returned, no partial basket is visible at the final address.
type UploadFailedError struct {
	BasketType string
	UUID       string
	Err        error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("weave: upload of %s/%s failed: %v", e.BasketType, e.UUID, e.Err)
}

func (e *UploadFailedError) Unwrap() error {
	return e.Err
}
