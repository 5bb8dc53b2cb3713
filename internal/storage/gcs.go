package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/quillpress/apiserver/config"
)

// GCSClient keeps uploads in a Cloud Storage bucket.
type GCSClient struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	name    string
	project string
	layout  objectLayout
}

func NewGCSClient(ctx context.Context, storageCfg config.StorageConfig) (*GCSClient, error) {
	cfg := storageCfg.GCS
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("missing GCS_BUCKET")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	return &GCSClient{
		client:  client,
		bucket:  client.Bucket(name),
		name:    name,
		project: strings.TrimSpace(cfg.ProjectID),
		layout:  newObjectLayout(storageCfg),
	}, nil
}

// EnsureBucket creates the bucket in the configured project when missing.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return err
	case g.project == "":
		return fmt.Errorf("bucket %s does not exist and GCS_PROJECT_ID is empty", g.name)
	}
	return g.bucket.Create(ctx, g.project, &storage.BucketAttrs{
		UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
	})
}

// Put streams r into a new object. Upload names embed a timestamp, so an
// existing object is never overwritten.
func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	obj := g.bucket.Object(g.layout.object(key)).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = g.layout.contentType(key, contentType)
	w.CacheControl = g.layout.cacheControl
	if size > 0 && size < googleapi.DefaultUploadChunkSize {
		w.ChunkSize = 0
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(g.layout.object(key)).NewReader(ctx)
	if err != nil {
		return nil, gcsError(err)
	}
	return r, nil
}

func (g *GCSClient) Delete(ctx context.Context, key string) error {
	return gcsError(g.bucket.Object(g.layout.object(key)).Delete(ctx))
}

func (g *GCSClient) Bucket() string {
	return g.name
}

// Close releases the underlying client.
func (g *GCSClient) Close() error {
	return g.client.Close()
}

func gcsError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}
