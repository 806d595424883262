package index

import (
	"testing"
	"time"
)

func TestPaginate_Bounds(t *testing.T) {
	rows := []*Row{{UUID: "a"}, {UUID: "b"}, {UUID: "c"}}

	if got := Paginate(rows, 0, 0); len(got) != 3 {
		t.Errorf("No limit/offset must return all rows, got %d", len(got))
	}
	if got := Paginate(rows, 2, 0); len(got) != 2 || got[0].UUID != "a" {
		t.Errorf("Unexpected limited page %+v", got)
	}
	if got := Paginate(rows, 0, 2); len(got) != 1 || got[0].UUID != "c" {
		t.Errorf("Unexpected offset page %+v", got)
	}
	if got := Paginate(rows, 5, 10); len(got) != 0 {
		t.Errorf("Offset past the end must return empty, got %+v", got)
	}
}

func TestSortRows_EmptyFieldKeepsOrder(t *testing.T) {
	rows := []*Row{{UUID: "c"}, {UUID: "a"}, {UUID: "b"}}
	SortRows(rows, "", SortAsc)
	if rows[0].UUID != "c" || rows[1].UUID != "a" || rows[2].UUID != "b" {
		t.Errorf("Order changed without a sort field: %+v", rows)
	}
}

func TestQueryMatches_TimeBoundsInclusive(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	row := &Row{UUID: "a", UploadTime: at}

	query := &Query{UploadedAfter: &at, UploadedBefore: &at}
	if !query.Matches(row) {
		t.Error("Bounds are inclusive; exact timestamp must match")
	}
}
