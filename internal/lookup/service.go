package lookup

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/segments"
)

// Service answers point queries, random sampling and distribution summaries against
// the current canonical table. Every call reads a single snapshot; Replace swaps the
// snapshot reference and never mutates a published one.
type Service struct {
	current atomic.Pointer[Snapshot]
	catalog *segments.Catalog

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithRand sets the random source used by Sample.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) {
		s.rng = rng
	}
}

// WithCatalog sets the segment descriptor catalog. Defaults to segments.Default().
func WithCatalog(c *segments.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// NewService creates a service serving an empty table until Replace is called.
func NewService(opts ...Option) *Service {
	now := uint64(time.Now().UnixNano())
	s := &Service{
		catalog: segments.Default(),
		rng:     rand.New(rand.NewPCG(now, now>>1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(NewSnapshot(nil))
	return s
}

// Replace publishes table as the new snapshot.
func (s *Service) Replace(table domain.CanonicalTable) *Snapshot {
	snap := NewSnapshot(table)
	s.current.Store(snap)
	return snap
}

// Snapshot returns the snapshot currently being served.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Get looks up an account. The boolean is false when the account is not in the table.
func (s *Service) Get(accountID int64) (domain.Record, bool) {
	snap := s.current.Load()
	i, ok := snap.byID[accountID]
	if !ok {
		return domain.Record{}, false
	}
	return snap.records[i], true
}

// Find is Get with a NotFound error for callers that branch on errors.
func (s *Service) Find(accountID int64) (domain.Record, error) {
	r, ok := s.Get(accountID)
	if !ok {
		return domain.Record{}, fmt.Errorf("account %d: %w", accountID, domain.ErrNotFound)
	}
	return r, nil
}

// Sample returns a uniformly chosen record. It fails only when the table is empty.
func (s *Service) Sample() (domain.Record, error) {
	snap := s.current.Load()
	if len(snap.records) == 0 {
		return domain.Record{}, fmt.Errorf("sample: %w", domain.ErrEmptyInput)
	}

	s.rngMu.Lock()
	i := s.rng.IntN(len(snap.records))
	s.rngMu.Unlock()

	return snap.records[i], nil
}

// Distribution returns the account count per observed segment, ascending by segment id.
func (s *Service) Distribution() []domain.SegmentCount {
	return s.current.Load().Distribution()
}

// Catalog returns every segment descriptor, ordered by segment id.
func (s *Service) Catalog() []domain.Descriptor {
	return s.catalog.All()
}

// Describe resolves a segment id to its descriptor; unknown ids get a placeholder.
func (s *Service) Describe(segmentID int) domain.Descriptor {
	return s.catalog.Describe(segmentID)
}

// AccountIDs lists every account id in ascending order.
func (s *Service) AccountIDs() []int64 {
	snap := s.current.Load()
	ids := make([]int64, len(snap.records))
	for i, r := range snap.records {
		ids[i] = r.AccountID
	}
	return ids
}

// Len returns the size of the current table.
func (s *Service) Len() int {
	return s.current.Load().Len()
}
