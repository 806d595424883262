package local

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/309thEDDGE/weave/storage"
)

func newStore(t *testing.T) *LocalStore {
	t.Helper()

	store := NewLocalStore(t.TempDir())
	if err := store.Open(t.Context()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return store
}

func put(t *testing.T, store *LocalStore, key, content string) {
	t.Helper()

	if err := store.PutObject(t.Context(), key, bytes.NewReader([]byte(content)), int64(len(content))); err != nil {
		t.Fatalf("PutObject %s failed: %v", key, err)
	}
}

func TestLocalStore_PutGetHead(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	put(t, store, "a/b/c.txt", "nested content")

	object, err := store.GetObject(ctx, "a/b/c.txt")
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer object.Close()

	content, err := io.ReadAll(object)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "nested content" {
		t.Errorf("Unexpected content %q", content)
	}

	stat, err := store.HeadObject(ctx, "a/b/c.txt")
	if err != nil {
		t.Fatalf("HeadObject failed: %v", err)
	}
	if stat.Key != "a/b/c.txt" || stat.Size != int64(len("nested content")) || stat.IsPrefix {
		t.Errorf("Unexpected stat %+v", stat)
	}
}

func TestLocalStore_NotExist(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	if _, err := store.GetObject(ctx, "missing"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("GetObject: expected ErrNotExist, got %v", err)
	}
	if _, err := store.HeadObject(ctx, "missing"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("HeadObject: expected ErrNotExist, got %v", err)
	}
	if _, err := store.ListObjects(ctx, "missing", false); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("ListObjects: expected ErrNotExist, got %v", err)
	}
	if err := store.CopyObject(ctx, "missing", "dst"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("CopyObject: expected ErrNotExist, got %v", err)
	}
	if err := store.MoveTree(ctx, "missing", "dst"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("MoveTree: expected ErrNotExist, got %v", err)
	}
}

func TestLocalStore_ListObjects(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	put(t, store, "root/top.txt", "1")
	put(t, store, "root/sub/inner.txt", "2")
	put(t, store, "root/sub/deep/leaf.txt", "3")

	// Non-recursive: one file plus one prefix.
	shallow, err := store.ListObjects(ctx, "root", false)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(shallow) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(shallow))
	}
	byKey := map[string]bool{}
	for _, stat := range shallow {
		byKey[stat.Key] = stat.IsPrefix
	}
	if isPrefix, ok := byKey["root/top.txt"]; !ok || isPrefix {
		t.Errorf("Expected root/top.txt as object, got %v", byKey)
	}
	if isPrefix, ok := byKey["root/sub"]; !ok || !isPrefix {
		t.Errorf("Expected root/sub as prefix, got %v", byKey)
	}

	// Recursive: every file, no prefixes.
	deep, err := store.ListObjects(ctx, "root", true)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	keys := make([]string, 0, len(deep))
	for _, stat := range deep {
		if stat.IsPrefix {
			t.Errorf("Recursive listing returned prefix %s", stat.Key)
		}
		keys = append(keys, stat.Key)
	}
	sort.Strings(keys)
	expected := []string{"root/sub/deep/leaf.txt", "root/sub/inner.txt", "root/top.txt"}
	if len(keys) != len(expected) {
		t.Fatalf("Expected %d keys, got %v", len(expected), keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("Expected %s, got %s", expected[i], keys[i])
		}
	}
}

func TestLocalStore_CopyObject(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	put(t, store, "src.txt", "copy me")
	if err := store.CopyObject(ctx, "src.txt", "dir/dst.txt"); err != nil {
		t.Fatalf("CopyObject failed: %v", err)
	}

	for _, key := range []string{"src.txt", "dir/dst.txt"} {
		object, err := store.GetObject(ctx, key)
		if err != nil {
			t.Fatalf("GetObject %s failed: %v", key, err)
		}
		content, _ := io.ReadAll(object)
		object.Close()
		if string(content) != "copy me" {
			t.Errorf("Unexpected content in %s: %q", key, content)
		}
	}
}

func TestLocalStore_MoveTree(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	put(t, store, "staging/x/a.txt", "a")
	put(t, store, "staging/x/sub/b.txt", "b")

	if err := store.MoveTree(ctx, "staging/x", "final/x"); err != nil {
		t.Fatalf("MoveTree failed: %v", err)
	}

	if _, err := store.ListObjects(ctx, "staging/x", true); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("Source survived the move: %v", err)
	}
	moved, err := store.ListObjects(ctx, "final/x", true)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(moved) != 2 {
		t.Errorf("Expected 2 moved objects, got %d", len(moved))
	}
}

func TestLocalStore_MoveTreeDestinationOccupied(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	put(t, store, "staging/x/a.txt", "a")
	put(t, store, "final/x/existing.txt", "b")

	if err := store.MoveTree(ctx, "staging/x", "final/x"); !errors.Is(err, storage.ErrExist) {
		t.Errorf("Expected ErrExist, got %v", err)
	}

	// A refused move leaves both trees untouched.
	if _, err := store.HeadObject(ctx, "staging/x/a.txt"); err != nil {
		t.Errorf("Source lost after refused move: %v", err)
	}
	if _, err := store.HeadObject(ctx, "final/x/existing.txt"); err != nil {
		t.Errorf("Destination damaged by refused move: %v", err)
	}
}

func TestLocalStore_DeletePrefix(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	put(t, store, "tree/a.txt", "a")
	put(t, store, "tree/sub/b.txt", "b")
	put(t, store, "other/c.txt", "c")

	if err := store.DeletePrefix(ctx, "tree"); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if _, err := store.ListObjects(ctx, "tree", true); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("Prefix survived: %v", err)
	}
	if _, err := store.HeadObject(ctx, "other/c.txt"); err != nil {
		t.Errorf("Unrelated object deleted: %v", err)
	}

	// Deleting an absent prefix is a no-op.
	if err := store.DeletePrefix(ctx, "tree"); err != nil {
		t.Errorf("DeletePrefix on missing prefix: %v", err)
	}
}

func TestLocalStore_DeleteObject(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	put(t, store, "x.txt", "x")
	if err := store.DeleteObject(ctx, "x.txt"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if _, err := store.HeadObject(ctx, "x.txt"); !errors.Is(err, storage.ErrNotExist) {
		t.Errorf("Object survived delete: %v", err)
	}
	if err := store.DeleteObject(ctx, "x.txt"); err != nil {
		t.Errorf("DeleteObject on missing key: %v", err)
	}
}

func TestLocalStore_KeyEscapeContained(t *testing.T) {
	ctx := t.Context()
	store := newStore(t)

	// Path traversal in keys must stay inside the root.
	put(t, store, "../escape.txt", "contained")
	if _, err := store.HeadObject(ctx, "escape.txt"); err != nil {
		t.Errorf("Escaping key not normalized into root: %v", err)
	}
}

func TestLocalStore_Capabilities(t *testing.T) {
	store := newStore(t)

	caps := store.GetCapabilities()
	if !caps.Contains(storage.CapabilityAtomicMove) {
		t.Error("Local store must advertise atomic move")
	}
	if !caps.Contains(storage.CapabilityObjectStorage) {
		t.Error("Local store must advertise object storage")
	}
}
