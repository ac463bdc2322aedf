package lookup

import (
	"sort"
	"time"

	"github.com/dvloznov/card-segments/internal/domain"
)

// Snapshot is an immutable, indexed view of one canonical table.
type Snapshot struct {
	records      domain.CanonicalTable
	byID         map[int64]int
	distribution []domain.SegmentCount
	loadedAt     time.Time
}

// NewSnapshot indexes table. The table is copied; later changes to it are not observed.
func NewSnapshot(table domain.CanonicalTable) *Snapshot {
	records := append(domain.CanonicalTable(nil), table...)
	sort.Slice(records, func(i, j int) bool { return records[i].AccountID < records[j].AccountID })

	byID := make(map[int64]int, len(records))
	counts := make(map[int]int)
	for i, r := range records {
		byID[r.AccountID] = i
		counts[r.SegmentID]++
	}

	dist := make([]domain.SegmentCount, 0, len(counts))
	for seg, n := range counts {
		dist = append(dist, domain.SegmentCount{SegmentID: seg, Count: n})
	}
	sort.Slice(dist, func(i, j int) bool { return dist[i].SegmentID < dist[j].SegmentID })

	return &Snapshot{
		records:      records,
		byID:         byID,
		distribution: dist,
		loadedAt:     time.Now(),
	}
}

// Len returns the number of records in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.records)
}

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Distribution returns a copy of the per-segment account counts.
func (s *Snapshot) Distribution() []domain.SegmentCount {
	return append([]domain.SegmentCount(nil), s.distribution...)
}
