package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/card-segments/internal/domain"
)

// GCSStore keeps the canonical table as a single Cloud Storage object.
// An object only becomes visible once its writer is closed successfully, so a
// failed upload leaves the previous generation in place.
type GCSStore struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSStore creates a store for gs://bucket/object using an existing client.
func NewGCSStore(client *storage.Client, bucket, object string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, object: object}
}

// NewGCSStoreFromURI creates a client using Application Default Credentials and
// a store for the given gs:// URI.
func NewGCSStoreFromURI(ctx context.Context, uri string) (*GCSStore, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStoreFromURI: create storage client: %w", err)
	}
	return NewGCSStore(client, bucket, object), nil
}

// Location returns the gs:// URI of the object.
func (s *GCSStore) Location() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Save uploads the table, replacing the previous object.
func (s *GCSStore) Save(ctx context.Context, table domain.CanonicalTable) error {
	data, err := EncodeParquet(table)
	if err != nil {
		return fmt.Errorf("GCSStore.Save: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	w.ContentType = "application/vnd.apache.parquet"

	if _, err := w.Write(data); err != nil {
		// Cancelling the context aborts the upload without finalizing the object.
		cancel()
		_ = w.Close()
		return fmt.Errorf("GCSStore.Save: write %s: %w", s.Location(), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSStore.Save: finalize %s: %w", s.Location(), err)
	}
	return nil
}

// Load downloads and decodes the table, returning ErrNoSnapshot if the object does not exist.
func (s *GCSStore) Load(ctx context.Context) (domain.CanonicalTable, error) {
	rc, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Load: open %s: %w", s.Location(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Load: read %s: %w", s.Location(), err)
	}

	table, err := DecodeParquet(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Load: %w", err)
	}
	return table, nil
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

var _ Store = (*GCSStore)(nil)
