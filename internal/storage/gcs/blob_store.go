// Package gcs archives verdict batches to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Batch archives are a few hundred KB at most; a single-request upload
// avoids the resumable-session round trip.
const defaultChunkSize = 0

// Config selects the bucket and object settings.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// Metadata is attached to every uploaded object.
	Metadata map[string]string
	// CacheControl is set on every object when non-empty.
	CacheControl string
	// ChunkSize > 0 switches to resumable uploads with that chunk size.
	ChunkSize int
}

// BlobStore implements validation.BlobStore on a GCS bucket.
type BlobStore struct {
	bucket *storage.BucketHandle
	name   string
	prefix string
	cfg    Config
}

// New returns a BlobStore writing to cfg.Bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	cfg.Metadata = maps.Clone(cfg.Metadata)
	if cfg.ChunkSize < 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &BlobStore{
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		cfg:    cfg,
	}, nil
}

// ObjectName returns the full object name for p under prefix.
func ObjectName(prefix, p string) string {
	p = strings.TrimLeft(p, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return p
	}
	return path.Join(prefix, p)
}

// PutObject streams r into the object at p and returns its gs:// URI. A
// failed read aborts the upload, leaving any previous object in place.
func (s *BlobStore) PutObject(ctx context.Context, p string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	name := ObjectName(s.prefix, p)

	uploadCtx, abort := context.WithCancel(ctx)
	defer abort()
	w := s.bucket.Object(name).NewWriter(uploadCtx)
	w.ChunkSize = s.cfg.ChunkSize
	w.ContentType = contentType
	w.CacheControl = s.cfg.CacheControl
	w.Metadata = s.cfg.Metadata

	if _, err := io.Copy(w, r); err != nil {
		abort()
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.name, name), nil
}
