package storage

import (
	"context"
	"errors"

	"github.com/dvloznov/card-segments/internal/domain"
)

// ErrNoSnapshot is returned by Load when no canonical table has been published yet.
var ErrNoSnapshot = errors.New("no canonical table published")

// Store persists the canonical table. Save replaces the whole table atomically:
// a concurrent Load sees either the previous table or the new one, never a mix.
type Store interface {
	Save(ctx context.Context, table domain.CanonicalTable) error
	Load(ctx context.Context) (domain.CanonicalTable, error)
	Location() string
}
