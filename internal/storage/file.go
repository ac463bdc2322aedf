package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dvloznov/card-segments/internal/domain"
)

// FileStore keeps the canonical table in a local Parquet file.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the file path.
func (s *FileStore) Location() string {
	return s.path
}

// Save writes the table to a temporary file in the same directory and renames it over
// the target, so readers never observe a partially written file.
func (s *FileStore) Save(ctx context.Context, table domain.CanonicalTable) error {
	data, err := EncodeParquet(table)
	if err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("FileStore.Save: create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("FileStore.Save: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Save: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Save: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("FileStore.Save: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("FileStore.Save: replace %q: %w", s.path, err)
	}
	return nil
}

// Load reads the table, returning ErrNoSnapshot if the file does not exist.
func (s *FileStore) Load(ctx context.Context) (domain.CanonicalTable, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: read %q: %w", s.path, err)
	}

	table, err := DecodeParquet(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}
	return table, nil
}

var _ Store = (*FileStore)(nil)
