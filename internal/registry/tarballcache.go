package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"
)

// TarballCache stores downloaded tarball bytes keyed by their resolved
// URL, the same way Uploader already separates "check existence" from
// "fetch" — pkgforge separates "fetch" from "cache" the same way.
type TarballCache interface {
	Get(ctx context.Context, url string) ([]byte, bool)
	Put(ctx context.Context, url string, data []byte)
}

func cacheKeyForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// diskTarballCache is the default TarballCache: tarballs land under a
// local directory keyed by a hash of their URL.
type diskTarballCache struct {
	fs  afero.Fs
	dir string
}

// NewDiskTarballCache returns a TarballCache rooted at dir on fs.
func NewDiskTarballCache(fs afero.Fs, dir string) TarballCache {
	return &diskTarballCache{fs: fs, dir: dir}
}

func (c *diskTarballCache) Get(_ context.Context, url string) ([]byte, bool) {
	data, err := afero.ReadFile(c.fs, filepath.Join(c.dir, cacheKeyForURL(url)+".tgz"))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *diskTarballCache) Put(_ context.Context, url string, data []byte) {
	_ = c.fs.MkdirAll(c.dir, 0o755)
	_ = afero.WriteFile(c.fs, filepath.Join(c.dir, cacheKeyForURL(url)+".tgz"), data, 0o644)
}

// s3TarballCache is the optional TarballCache for teams proxying tarballs
// through S3-compatible storage instead of re-fetching from the public
// registry on every machine.
type s3TarballCache struct {
	client *minio.Client
	bucket string
}

// NewS3TarballCache returns a TarballCache backed by an S3-compatible
// endpoint reachable via the minio client.
func NewS3TarballCache(endpoint, accessKey, secretKey, bucket string, useSSL bool) (TarballCache, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to construct s3 tarball cache: %w", err)
	}
	return &s3TarballCache{client: client, bucket: bucket}, nil
}

func (c *s3TarballCache) Get(ctx context.Context, url string) ([]byte, bool) {
	obj, err := c.client.GetObject(ctx, c.bucket, cacheKeyForURL(url), minio.GetObjectOptions{})
	if err != nil {
		return nil, false
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *s3TarballCache) Put(ctx context.Context, url string, data []byte) {
	_, _ = c.client.PutObject(ctx, c.bucket, cacheKeyForURL(url), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
}
