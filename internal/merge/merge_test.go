package merge

import (
	"testing"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_InnerJoin(t *testing.T) {
	features := domain.FeatureTable{
		{AccountID: 3, TotalTxns: 3},
		{AccountID: 1, TotalTxns: 1},
		{AccountID: 2, TotalTxns: 2},
	}
	assignments := domain.AssignmentTable{
		{AccountID: 2, SegmentID: 1},
		{AccountID: 3, SegmentID: 0},
		{AccountID: 9, SegmentID: 2},
	}

	table, stats := Merge(features, assignments)

	require.Len(t, table, 2)
	assert.Equal(t, int64(2), table[0].AccountID)
	assert.Equal(t, 1, table[0].SegmentID)
	assert.Equal(t, 2, table[0].TotalTxns)
	assert.Equal(t, int64(3), table[1].AccountID)
	assert.Equal(t, 0, table[1].SegmentID)

	assert.Equal(t, Stats{
		Features:           3,
		Assignments:        3,
		Joined:             2,
		DroppedFeatures:    1,
		DroppedAssignments: 1,
	}, stats)
}

func TestMerge_RowCountIsKeyIntersection(t *testing.T) {
	tests := []struct {
		name        string
		featureIDs  []int64
		assignedIDs []int64
		want        int
	}{
		{"identical", []int64{1, 2, 3}, []int64{3, 2, 1}, 3},
		{"disjoint", []int64{1, 2}, []int64{3, 4}, 0},
		{"empty features", nil, []int64{1}, 0},
		{"empty assignments", []int64{1}, nil, 0},
		{"subset", []int64{1, 2, 3, 4}, []int64{2, 4}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var features domain.FeatureTable
			for _, id := range tt.featureIDs {
				features = append(features, domain.FeatureVector{AccountID: id})
			}
			var assignments domain.AssignmentTable
			for _, id := range tt.assignedIDs {
				assignments = append(assignments, domain.Assignment{AccountID: id})
			}

			table, stats := Merge(features, assignments)
			assert.Len(t, table, tt.want)
			assert.Equal(t, tt.want, stats.Joined)
		})
	}
}

func TestMerge_DuplicatesKeepFirst(t *testing.T) {
	features := domain.FeatureTable{
		{AccountID: 1, TotalTxns: 10},
		{AccountID: 1, TotalTxns: 99},
	}
	assignments := domain.AssignmentTable{
		{AccountID: 1, SegmentID: 2},
		{AccountID: 1, SegmentID: 0},
	}

	table, stats := Merge(features, assignments)

	require.Len(t, table, 1)
	assert.Equal(t, 10, table[0].TotalTxns)
	assert.Equal(t, 2, table[0].SegmentID)
	assert.Equal(t, 2, stats.Duplicates)
}
