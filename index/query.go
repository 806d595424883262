package index

import (
	"sort"
	"time"
)

// Query filters index rows. Nil fields are not applied.
type Query struct {
	// BasketType matches rows of exactly this type.
	BasketType *string `json:"basket_type,omitempty"`

	// Label matches rows with exactly this label.
	Label *string `json:"label,omitempty"`

	// UploadedAfter / UploadedBefore bound the upload time (inclusive).
	UploadedAfter  *time.Time `json:"uploaded_after,omitempty"`
	UploadedBefore *time.Time `json:"uploaded_before,omitempty"`

	// ParentUUID matches rows whose parent list contains this UUID.
	ParentUUID *string `json:"parent_uuid,omitempty"`

	// ===== Sorting and pagination =====
	SortBy    SortField `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`

	// Limit caps the number of rows returned (0 = unlimited).
	Limit int `json:"limit"`

	// Offset skips this many rows after sorting.
	Offset int `json:"offset"`
}

type SortField string

const (
	SortByUUID       SortField = "uuid"
	SortByUploadTime SortField = "upload_time"
	SortByBasketType SortField = "basket_type"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Matches reports whether the row passes every filter in the query.
func (q *Query) Matches(row *Row) bool {
	if q.BasketType != nil && row.BasketType != *q.BasketType {
		return false
	}
	if q.Label != nil && row.Label != *q.Label {
		return false
	}
	if q.UploadedAfter != nil && row.UploadTime.Before(*q.UploadedAfter) {
		return false
	}
	if q.UploadedBefore != nil && row.UploadTime.After(*q.UploadedBefore) {
		return false
	}
	if q.ParentUUID != nil && !row.HasParent(*q.ParentUUID) {
		return false
	}
	return true
}

// ApplyFilters evaluates the query against candidates in memory. Backends
// without native query support filter, sort and paginate through this one
// helper so every backend agrees on query semantics.
func ApplyFilters(candidates []*Row, query *Query) []*Row {
	filtered := make([]*Row, 0, len(candidates))
	for _, row := range candidates {
		if query.Matches(row) {
			filtered = append(filtered, row)
		}
	}

	SortRows(filtered, query.SortBy, query.SortOrder)
	return Paginate(filtered, query.Limit, query.Offset)
}

// SortRows orders rows by the given field; an empty field leaves the input
// order untouched.
func SortRows(rows []*Row, field SortField, order SortOrder) {
	if field == "" {
		return
	}

	less := func(a, b *Row) bool {
		switch field {
		case SortByUploadTime:
			return a.UploadTime.Before(b.UploadTime)
		case SortByBasketType:
			return a.BasketType < b.BasketType
		default:
			return a.UUID < b.UUID
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if order == SortDesc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

// Paginate applies offset and limit to an already sorted result.
func Paginate(rows []*Row, limit, offset int) []*Row {
	if offset > 0 {
		if offset >= len(rows) {
			return []*Row{}
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
