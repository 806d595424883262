// Package local implements the weave ObjectStore on a local filesystem
// directory. Promotion is a true atomic rename, so readers never observe a
// partially written basket.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/309thEDDGE/weave/storage"
)

type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at the given directory. The directory
// is created on Open if it does not exist.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{
		root: filepath.Clean(root),
	}
}

// Name returns the identifier name defined for this store.
func (*LocalStore) Name() string {
	return "local"
}

// Open is part of the lifecycle behaviour and gets called when opening this store.
func (ls *LocalStore) Open(ctx context.Context) error {
	if err := os.MkdirAll(ls.root, 0755); err != nil {
		return err
	}

	info, err := os.Stat(ls.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("storage: root is not a directory")
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this store.
func (ls *LocalStore) Close(ctx context.Context) error {
	// The underlying filesystem persists independently
	return nil
}

// GetCapabilities returns a list of capabilities supported by this store.
func (ls *LocalStore) GetCapabilities() *storage.Capabilities {
	return &storage.Capabilities{
		Capabilities: []storage.Capability{
			storage.CapabilityObjectStorage,
			storage.CapabilityAtomicMove,
		},
	}
}

// resolve joins the store root with the slash-separated key.
func (ls *LocalStore) resolve(key string) string {
	return filepath.Join(ls.root, filepath.FromSlash(path.Clean("/"+key)))
}

func (ls *LocalStore) toStat(key string, info os.FileInfo) *storage.ObjectStat {
	return &storage.ObjectStat{
		Key:        key,
		Size:       info.Size(),
		IsPrefix:   info.IsDir(),
		ModifyTime: info.ModTime(),
	}
}

func (ls *LocalStore) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	fullPath := ls.resolve(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(fullPath)
		return err
	}

	return file.Close()
}

func (ls *LocalStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(ls.resolve(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotExist
		}
		return nil, err
	}

	return file, nil
}

func (ls *LocalStore) HeadObject(ctx context.Context, key string) (*storage.ObjectStat, error) {
	info, err := os.Stat(ls.resolve(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotExist
		}
		return nil, err
	}

	return ls.toStat(key, info), nil
}

func (ls *LocalStore) ListObjects(ctx context.Context, prefix string, recursive bool) ([]*storage.ObjectStat, error) {
	fullPath := ls.resolve(prefix)

	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotExist
		}
		return nil, err
	}
	if !info.IsDir() {
		return []*storage.ObjectStat{ls.toStat(prefix, info)}, nil
	}

	if !recursive {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return nil, err
		}

		stats := make([]*storage.ObjectStat, 0, len(entries))
		for _, entry := range entries {
			childInfo, err := entry.Info()
			if err != nil {
				continue
			}
			stats = append(stats, ls.toStat(path.Join(prefix, entry.Name()), childInfo))
		}

		return stats, nil
	}

	stats := make([]*storage.ObjectStat, 0)
	err = filepath.WalkDir(fullPath, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return ctx.Err()
		}

		childInfo, err := entry.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(fullPath, walkPath)
		if err != nil {
			return err
		}
		stats = append(stats, ls.toStat(path.Join(prefix, filepath.ToSlash(rel)), childInfo))
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (ls *LocalStore) CopyObject(ctx context.Context, src, dst string) error {
	srcFile, err := os.Open(ls.resolve(src))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotExist
		}
		return err
	}
	defer srcFile.Close()

	return ls.PutObject(ctx, dst, srcFile, -1)
}

func (ls *LocalStore) DeleteObject(ctx context.Context, key string) error {
	err := os.Remove(ls.resolve(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (ls *LocalStore) DeletePrefix(ctx context.Context, prefix string) error {
	return os.RemoveAll(ls.resolve(prefix))
}

// MoveTree renames the directory at src to dst in one atomic operation.
// An occupied destination is refused with ErrExist rather than merged or
// replaced.
func (ls *LocalStore) MoveTree(ctx context.Context, src, dst string) error {
	srcPath := ls.resolve(src)
	dstPath := ls.resolve(dst)

	if _, err := os.Stat(srcPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotExist
		}
		return err
	}

	if _, err := os.Stat(dstPath); err == nil {
		return storage.ErrExist
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}

	return os.Rename(srcPath, dstPath)
}
