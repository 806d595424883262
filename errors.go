package weave

import "errors"

// ErrNotIndexed marks an upload whose basket committed to storage but could
// not be registered with the index backend. The basket is valid and will be
// recovered by the next Sync.
var ErrNotIndexed = errors.New("weave: basket committed but not indexed")
