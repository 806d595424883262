package weave

import (
	"github.com/309thEDDGE/weave/basket"
	"github.com/309thEDDGE/weave/data"
	"github.com/309thEDDGE/weave/log"
)

// Option configures a Pantry at construction.
type Option func(*Pantry)

// WithLogger routes pantry logging to the given logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pantry) {
		p.logger = logger.Named("pantry")
	}
}

// UploadOption configures a single Upload call.
type UploadOption func(*basket.WriteRequest)

// WithParents records the UUIDs of the baskets this one was derived from.
func WithParents(parentUUIDs ...string) UploadOption {
	return func(req *basket.WriteRequest) {
		req.ParentUUIDs = parentUUIDs
	}
}

// WithMetadata attaches an opaque user document to the basket.
func WithMetadata(metadata data.Metadata) UploadOption {
	return func(req *basket.WriteRequest) {
		req.Metadata = metadata
	}
}

// WithLabel attaches a user-friendly label to the basket.
func WithLabel(label string) UploadOption {
	return func(req *basket.WriteRequest) {
		req.Label = label
	}
}

// ValidateOption configures a single Validate call.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	deepIntegrity bool
}

// WithDeepIntegrity recomputes every non-stub file's digest against the
// supplement instead of trusting recorded hashes. Expensive.
func WithDeepIntegrity() ValidateOption {
	return func(o *validateOptions) {
		o.deepIntegrity = true
	}
}
