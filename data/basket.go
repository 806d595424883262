package data

import (
	"strings"
	"time"
)

// Artifact files reserved by weave inside every basket. Upload items are not
// allowed to carry these names.
const (
	ManifestFile   = "basket_manifest.json"
	SupplementFile = "basket_supplement.json"
	MetadataFile   = "basket_metadata.json"
)

// StagingPrefix is the hidden key prefix where baskets are assembled before
// promotion. Keys under it are never reported by index scans or validation.
const StagingPrefix = ".weave-staging"

// ProhibitedFilenames returns true if name is reserved for basket artifacts.
func ProhibitedFilename(name string) bool {
	switch name {
	case ManifestFile, SupplementFile, MetadataFile:
		return true
	}
	return false
}

// Manifest is the authoritative descriptor of a basket, stored as
// basket_manifest.json at the basket address. A basket without a parseable
// manifest is invalid.
type Manifest struct {
	UUID        string    `json:"uuid"`
	UploadTime  time.Time `json:"upload_time"`
	ParentUUIDs []string  `json:"parent_uuids"`
	BasketType  string    `json:"basket_type"`
	Label       string    `json:"label"`
}

// Validate checks the required manifest fields and returns the name of the
// first missing field, or "" when the manifest is complete.
func (m *Manifest) Validate() string {
	if strings.TrimSpace(m.UUID) == "" {
		return "uuid"
	}
	if m.UploadTime.IsZero() {
		return "upload_time"
	}
	if m.ParentUUIDs == nil {
		return "parent_uuids"
	}
	if strings.TrimSpace(m.BasketType) == "" {
		return "basket_type"
	}
	return ""
}

// FileEntry is one line of the per-file integrity ledger.
type FileEntry struct {
	// UploadItemPath is the original source path of the file.
	UploadItemPath string `json:"upload_item_path"`
	// UploadPath is the destination key inside the basket, or "stub" when
	// the file was referenced without being copied.
	UploadPath string    `json:"upload_path"`
	FileSize   int64     `json:"file_size"`
	Hash       string    `json:"hash"`
	AccessDate time.Time `json:"access_date"`
	IsStub     bool      `json:"is_stub"`
}

// Supplement is the integrity ledger stored as basket_supplement.json.
// A committed basket always carries one, even when it holds no files.
type Supplement struct {
	UploadItems []FileEntry `json:"upload_items"`
}

// Metadata is the optional opaque user document stored as
// basket_metadata.json. Weave only checks that it parses as a JSON object.
type Metadata map[string]any

// UploadItem names a file or directory to place into a basket. When Stub is
// set, integrity data is recorded without copying any bytes.
type UploadItem struct {
	Path string `json:"path"`
	Stub bool   `json:"stub"`
}
