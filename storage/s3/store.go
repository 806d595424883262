// Package s3 implements the weave ObjectStore against any S3-compatible
// endpoint using the minio client. S3 has no atomic rename, so promotion
// falls back to server-side copies with the manifest written last.
package s3

import (
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/309thEDDGE/weave/storage"
)

type S3Store struct {
	client     *minio.Client
	bucketName string
	prefix     string
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Prefix scopes every key under a sub-path of the bucket (optional).
	Prefix string
}

func NewS3Store(config *S3Config) (*S3Store, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &S3Store{
		client:     client,
		bucketName: config.Bucket,
		prefix:     strings.Trim(config.Prefix, "/"),
	}, nil
}

// Name returns the identifier name defined for this store.
func (*S3Store) Name() string {
	return "s3"
}

// Open is part of the lifecycle behaviour and gets called when opening this store.
func (ss *S3Store) Open(ctx context.Context) error {
	exists, err := ss.client.BucketExists(ctx, ss.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotExist
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this store.
func (ss *S3Store) Close(ctx context.Context) error {
	return nil
}

// GetCapabilities returns a list of capabilities supported by this store.
func (ss *S3Store) GetCapabilities() *storage.Capabilities {
	return &storage.Capabilities{
		Capabilities: []storage.Capability{
			storage.CapabilityObjectStorage,
			storage.CapabilityServerSideCopy,
		},
	}
}

// resolve scopes the key under the configured bucket prefix. The root key
// resolves to the bare prefix; appending a separator to an empty key would
// produce a double slash that matches nothing.
func (ss *S3Store) resolve(key string) string {
	key = strings.Trim(key, "/")
	if ss.prefix == "" {
		return key
	}
	if key == "" {
		return ss.prefix
	}
	return ss.prefix + "/" + key
}

// relative strips the bucket prefix back off a listed object key.
func (ss *S3Store) relative(key string) string {
	if ss.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, ss.prefix+"/")
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}

func (ss *S3Store) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := ss.client.PutObject(ctx, ss.bucketName, ss.resolve(key), r, size, minio.PutObjectOptions{})
	return err
}

func (ss *S3Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := ss.client.GetObject(ctx, ss.bucketName, ss.resolve(key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.ErrNotExist
		}
		return nil, err
	}

	// GetObject is lazy; surface a missing key now instead of on first read.
	if _, err := object.Stat(); err != nil {
		object.Close()
		if isNoSuchKey(err) {
			return nil, storage.ErrNotExist
		}
		return nil, err
	}

	return object, nil
}

func (ss *S3Store) HeadObject(ctx context.Context, key string) (*storage.ObjectStat, error) {
	info, err := ss.client.StatObject(ctx, ss.bucketName, ss.resolve(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, storage.ErrNotExist
		}
		return nil, err
	}

	return &storage.ObjectStat{
		Key:        key,
		Size:       info.Size,
		ModifyTime: info.LastModified,
	}, nil
}

func (ss *S3Store) ListObjects(ctx context.Context, prefix string, recursive bool) ([]*storage.ObjectStat, error) {
	listPrefix := ss.resolve(prefix)
	if listPrefix != "" {
		listPrefix += "/"
	}

	stats := make([]*storage.ObjectStat, 0)
	for info := range ss.client.ListObjects(ctx, ss.bucketName, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: recursive,
	}) {
		if info.Err != nil {
			return nil, info.Err
		}

		key := ss.relative(info.Key)
		if strings.HasSuffix(key, "/") {
			stats = append(stats, &storage.ObjectStat{
				Key:      strings.TrimSuffix(key, "/"),
				IsPrefix: true,
			})
			continue
		}

		stats = append(stats, &storage.ObjectStat{
			Key:        key,
			Size:       info.Size,
			ModifyTime: info.LastModified,
		})
	}

	return stats, nil
}

func (ss *S3Store) CopyObject(ctx context.Context, src, dst string) error {
	_, err := ss.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: ss.bucketName, Object: ss.resolve(dst)},
		minio.CopySrcOptions{Bucket: ss.bucketName, Object: ss.resolve(src)},
	)
	if err != nil && isNoSuchKey(err) {
		return storage.ErrNotExist
	}
	return err
}

func (ss *S3Store) DeleteObject(ctx context.Context, key string) error {
	return ss.client.RemoveObject(ctx, ss.bucketName, ss.resolve(key), minio.RemoveObjectOptions{})
}

func (ss *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	stats, err := ss.ListObjects(ctx, prefix, true)
	if err != nil {
		return err
	}

	for _, stat := range stats {
		if stat.IsPrefix {
			continue
		}
		if err := ss.DeleteObject(ctx, stat.Key); err != nil {
			return err
		}
	}

	return nil
}

// MoveTree is not atomic on S3; callers must use manifest-last promotion.
func (ss *S3Store) MoveTree(ctx context.Context, src, dst string) error {
	return storage.ErrUnsupported
}
