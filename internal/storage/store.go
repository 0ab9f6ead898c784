// Package storage holds the object-storage backends that uploads are written to and
// downloads are read from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"church-portal-be/internal/config"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

type ObjectInfo struct {
	Size        int64
	ContentType string
}

// ObjectStore is the minimal contract every backend satisfies.
type ObjectStore interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ObjectWriter receives an object incrementally. Exactly one of Commit or Discard ends it.
type ObjectWriter interface {
	io.Writer
	Commit() error
	Discard() error
}

// StreamingStore is implemented by backends that can accept writes before the whole
// object is known.
type StreamingStore interface {
	ObjectStore
	Create(ctx context.Context, key, contentType string) (ObjectWriter, error)
}

// CleanKey normalizes a logical path into an object key: forward slashes, no leading
// slash, no parent references.
func CleanKey(key string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.LocalRoot)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	case "azure":
		return NewAzureBlobStore(AzureOptions{
			Account:   cfg.AzureAccount,
			Key:       cfg.AzureKey,
			Container: cfg.AzureContainer,
			Prefix:    cfg.AzurePrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
