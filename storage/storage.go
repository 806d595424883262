package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Standard errors ObjectStore implementations should return.
var (
	ErrNotExist    = errors.New("storage: object does not exist")
	ErrExist       = errors.New("storage: object already exists")
	ErrUnsupported = errors.New("storage: operation not supported")
)

// ObjectStat describes a single object or common prefix.
type ObjectStat struct {
	Key        string
	Size       int64
	IsPrefix   bool
	ModifyTime time.Time
}

// ObjectStore is the capability set weave consumes from a storage driver.
// Keys are slash-separated paths relative to the pantry root.
type ObjectStore interface {
	// Name returns the identifier name defined for this store.
	Name() string
	// Open is part of the lifecycle behaviour and gets called when opening this store.
	Open(ctx context.Context) error
	// Close is part of the lifecycle behaviour and gets called when closing this store.
	Close(ctx context.Context) error

	// GetCapabilities returns a list of capabilities supported by this store.
	GetCapabilities() *Capabilities

	// PutObject writes size bytes from r to key, creating parents as needed.
	PutObject(ctx context.Context, key string, r io.Reader, size int64) error

	// GetObject opens key for reading. Returns ErrNotExist if absent.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// HeadObject stats key without reading it. Returns ErrNotExist if absent.
	HeadObject(ctx context.Context, key string) (*ObjectStat, error)

	// ListObjects lists objects under prefix. When recursive is false,
	// immediate children only, with sub-prefixes reported as IsPrefix.
	ListObjects(ctx context.Context, prefix string, recursive bool) ([]*ObjectStat, error)

	// CopyObject duplicates src to dst within the store.
	CopyObject(ctx context.Context, src, dst string) error

	// DeleteObject removes a single object. Missing objects are not an error.
	DeleteObject(ctx context.Context, key string) error

	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// MoveTree atomically renames every object under src to the same
	// relative position under dst. Fails with ErrExist when dst is
	// already occupied. Stores without CapabilityAtomicMove return
	// ErrUnsupported.
	MoveTree(ctx context.Context, src, dst string) error
}

type Capability string

const (
	CapabilityObjectStorage Capability = "object_storage"
	// CapabilityAtomicMove marks stores whose MoveTree is a single atomic
	// operation, making a promoted tree visible all at once.
	CapabilityAtomicMove Capability = "atomic_move"
	// CapabilityServerSideCopy marks stores whose CopyObject does not
	// round-trip object bytes through the client.
	CapabilityServerSideCopy Capability = "server_side_copy"
)

// Capabilities describes what a store supports.
type Capabilities struct {
	Capabilities  []Capability `json:"capabilities"`
	MaxObjectSize int64        `json:"max_object_size"`
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
