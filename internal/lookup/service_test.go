package lookup

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/segments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id int64, seg int) domain.Record {
	return domain.Record{
		FeatureVector: domain.FeatureVector{AccountID: id, TotalTxns: int(id)},
		SegmentID:     seg,
	}
}

func testTable() domain.CanonicalTable {
	return domain.CanonicalTable{
		record(5, 2),
		record(1, 0),
		record(3, 2),
		record(2, 0),
		record(4, 2),
	}
}

func TestGet(t *testing.T) {
	svc := NewService()
	svc.Replace(testTable())

	r, ok := svc.Get(3)
	require.True(t, ok)
	assert.Equal(t, int64(3), r.AccountID)
	assert.Equal(t, 2, r.SegmentID)

	r, ok = svc.Get(999)
	assert.False(t, ok)
	assert.Equal(t, domain.Record{}, r)
}

func TestFind_NotFound(t *testing.T) {
	svc := NewService()
	svc.Replace(testTable())

	_, err := svc.Find(999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	r, err := svc.Find(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.AccountID)
}

func TestSample(t *testing.T) {
	svc := NewService(WithRand(rand.New(rand.NewPCG(1, 1))))

	_, err := svc.Sample()
	assert.ErrorIs(t, err, domain.ErrEmptyInput)

	svc.Replace(testTable())
	seen := map[int64]bool{}
	for i := 0; i < 500; i++ {
		r, err := svc.Sample()
		require.NoError(t, err)
		_, ok := svc.Get(r.AccountID)
		assert.True(t, ok)
		seen[r.AccountID] = true
	}
	assert.Len(t, seen, 5, "every record should be reachable")
}

func TestDistribution(t *testing.T) {
	svc := NewService()
	assert.Empty(t, svc.Distribution())

	svc.Replace(testTable())
	dist := svc.Distribution()

	assert.Equal(t, []domain.SegmentCount{
		{SegmentID: 0, Count: 2},
		{SegmentID: 2, Count: 3},
	}, dist, "segment 1 has no members and is absent")

	total := 0
	for _, d := range dist {
		total += d.Count
	}
	assert.Equal(t, svc.Len(), total)
}

func TestDistribution_ReturnsCopy(t *testing.T) {
	svc := NewService()
	svc.Replace(testTable())

	dist := svc.Distribution()
	dist[0].Count = 1000

	assert.Equal(t, 2, svc.Distribution()[0].Count)
}

func TestDescribe(t *testing.T) {
	svc := NewService()

	assert.Equal(t, "Urban Explorer", svc.Describe(0).Label)
	assert.Equal(t, segments.Unknown.Label, svc.Describe(17).Label)

	custom := segments.New([]domain.Descriptor{{SegmentID: 0, Label: "Only"}})
	svc = NewService(WithCatalog(custom))
	assert.Equal(t, "Only", svc.Describe(0).Label)
	assert.Equal(t, segments.Unknown.Label, svc.Describe(1).Label)
}

func TestCatalog(t *testing.T) {
	all := NewService().Catalog()
	require.Len(t, all, 3)
	for i, d := range all {
		assert.Equal(t, i, d.SegmentID)
	}

	custom := segments.New([]domain.Descriptor{{SegmentID: 4, Label: "B"}, {SegmentID: 1, Label: "A"}})
	got := NewService(WithCatalog(custom)).Catalog()
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Label)
	assert.Equal(t, "B", got[1].Label)
}

func TestAccountIDs(t *testing.T) {
	svc := NewService()
	svc.Replace(testTable())

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, svc.AccountIDs())
}

func TestReplace_DoesNotAliasInput(t *testing.T) {
	table := testTable()
	svc := NewService()
	svc.Replace(table)

	table[0].SegmentID = 9

	r, ok := svc.Get(5)
	require.True(t, ok)
	assert.Equal(t, 2, r.SegmentID)
}

func TestReplace_ConcurrentReaders(t *testing.T) {
	svc := NewService()
	svc.Replace(testTable())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := svc.Snapshot()
				total := 0
				for _, d := range snap.distribution {
					total += d.Count
				}
				assert.Equal(t, snap.Len(), total)
				_, _ = svc.Sample()
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			svc.Replace(testTable()[:2])
		} else {
			svc.Replace(testTable())
		}
	}
	wg.Wait()
}
