package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/quillpress/apiserver/config"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStorage is implemented by every upload backend. Keys are the bare
// filenames that appear after PublicPrefix in an upload URL.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage is the upload store handed to services and handlers.
type Storage struct {
	ObjectStorage
}

func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{ObjectStorage: backend}
}

// Close releases the backend's client when it holds one.
func (s *Storage) Close() error {
	if c, ok := s.ObjectStorage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Open builds the backend named by cfg.Backend and makes sure its bucket
// or directory exists.
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s backend: %w", cfg.Backend, err)
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend), nil
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", config.StorageBackendLocal:
		return NewLocalClient(cfg.LocalDir)
	case config.StorageBackendMinio:
		return NewMinioClient(cfg)
	case config.StorageBackendGCS:
		return NewGCSClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// objectLayout maps upload keys to object names and carries the metadata
// written with every object.
type objectLayout struct {
	prefix       string
	cacheControl string
}

func newObjectLayout(cfg config.StorageConfig) objectLayout {
	prefix := strings.Trim(strings.TrimSpace(cfg.KeyPrefix), "/")
	if prefix != "" {
		prefix += "/"
	}
	return objectLayout{prefix: prefix, cacheControl: strings.TrimSpace(cfg.CacheControl)}
}

func (l objectLayout) object(key string) string {
	return l.prefix + key
}

// contentType falls back to a guess from the key when the caller sent none.
func (l objectLayout) contentType(key, declared string) string {
	if strings.TrimSpace(declared) != "" {
		return declared
	}
	return ContentType(key)
}
