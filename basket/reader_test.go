package basket

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/309thEDDGE/weave/data"
)

func TestReader_LoadRoundTrip(t *testing.T) {
	ctx := t.Context()
	store := newTestStore(t)
	writer := NewWriter(store)
	reader := NewReader(store)

	source := writeSourceFile(t, "payload.txt", "round trip")
	committed, err := writer.Write(ctx, &WriteRequest{
		UploadItems: []data.UploadItem{{Path: source}},
		BasketType:  "results",
		Label:       "roundtrip",
		Metadata:    data.Metadata{"owner": "team-a"},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	view, err := reader.Load(ctx, committed.Address)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if view.Manifest.UUID != committed.UUID {
		t.Errorf("Expected UUID %s, got %s", committed.UUID, view.Manifest.UUID)
	}
	if !view.Manifest.UploadTime.Equal(committed.Manifest.UploadTime) {
		t.Errorf("Upload time changed across the round trip")
	}
	if view.Manifest.Label != "roundtrip" {
		t.Errorf("Unexpected label %q", view.Manifest.Label)
	}
	if len(view.Supplement.UploadItems) != 1 {
		t.Fatalf("Expected 1 supplement entry, got %d", len(view.Supplement.UploadItems))
	}
	if view.Metadata["owner"] != "team-a" {
		t.Errorf("Unexpected metadata %v", view.Metadata)
	}
}

func TestReader_MetadataOptional(t *testing.T) {
	ctx := t.Context()
	store := newTestStore(t)
	writer := NewWriter(store)
	reader := NewReader(store)

	source := writeSourceFile(t, "payload.txt", "no metadata")
	committed, err := writer.Write(ctx, &WriteRequest{
		UploadItems: []data.UploadItem{{Path: source}},
		BasketType:  "results",
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	view, err := reader.Load(ctx, committed.Address)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if view.Metadata != nil {
		t.Errorf("Expected nil metadata, got %v", view.Metadata)
	}
}

func TestReader_MissingManifest(t *testing.T) {
	ctx := t.Context()
	store := newTestStore(t)
	reader := NewReader(store)

	// A data file without a manifest is not a basket.
	content := []byte("orphan")
	if err := store.PutObject(ctx, "results/some-uuid/orphan.txt", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	_, err := reader.Load(ctx, "results/some-uuid")
	var invalid *InvalidBasketError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidBasketError, got %v", err)
	}
	if !strings.Contains(invalid.Reason, "manifest does not exist") {
		t.Errorf("Unexpected reason %q", invalid.Reason)
	}
}

func TestReader_MalformedManifest(t *testing.T) {
	ctx := t.Context()
	store := newTestStore(t)
	reader := NewReader(store)

	bad := []byte("{not json")
	if err := store.PutObject(ctx, "results/bad/"+data.ManifestFile, bytes.NewReader(bad), int64(len(bad))); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	_, err := reader.Load(ctx, "results/bad")
	var invalid *InvalidBasketError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidBasketError, got %v", err)
	}
	if invalid.Reason != "malformed manifest" {
		t.Errorf("Unexpected reason %q", invalid.Reason)
	}
}

func TestReader_ManifestMissingField(t *testing.T) {
	ctx := t.Context()
	store := newTestStore(t)
	reader := NewReader(store)

	// Valid JSON, but no uuid.
	partial := []byte(`{"basket_type":"results","upload_time":"2026-08-01T00:00:00Z","parent_uuids":[]}`)
	if err := store.PutObject(ctx, "results/partial/"+data.ManifestFile, bytes.NewReader(partial), int64(len(partial))); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	_, err := reader.Load(ctx, "results/partial")
	var invalid *InvalidBasketError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidBasketError, got %v", err)
	}
	if !strings.Contains(invalid.Reason, "missing required field") {
		t.Errorf("Unexpected reason %q", invalid.Reason)
	}
}

func TestBasket_LsAndOpen(t *testing.T) {
	ctx := t.Context()
	store := newTestStore(t)
	writer := NewWriter(store)
	reader := NewReader(store)

	source := writeSourceFile(t, "visible.txt", "file content")
	committed, err := writer.Write(ctx, &WriteRequest{
		UploadItems: []data.UploadItem{{Path: source}},
		BasketType:  "results",
		Metadata:    data.Metadata{"k": "v"},
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	view, err := reader.Load(ctx, committed.Address)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Ls hides the three artifact files.
	files, err := view.Ls(ctx)
	if err != nil {
		t.Fatalf("Ls failed: %v", err)
	}
	if len(files) != 1 || files[0].Key != committed.Address+"/visible.txt" {
		t.Fatalf("Unexpected listing %+v", files)
	}

	object, err := view.Open(ctx, "visible.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer object.Close()

	content, err := io.ReadAll(object)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "file content" {
		t.Errorf("Unexpected content %q", content)
	}
}
