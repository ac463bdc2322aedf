package segmentation

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs builds three well separated groups of accounts.
func blobs(perGroup int) domain.FeatureTable {
	rng := rand.New(rand.NewPCG(7, 7))
	jitter := func() float64 { return rng.Float64()*0.02 - 0.01 }

	var table domain.FeatureTable
	var id int64
	for g := 0; g < 3; g++ {
		for i := 0; i < perGroup; i++ {
			id++
			fv := domain.FeatureVector{AccountID: id}
			switch g {
			case 0:
				fv.TotalTxns, fv.AvgTxnAmt, fv.PctFood, fv.UniqueCities = 200+i%3, 3000+jitter(), 0.7+jitter(), 2
			case 1:
				fv.TotalTxns, fv.AvgTxnAmt, fv.SalaryFlag, fv.UniqueCities = 40+i%3, 45000+jitter(), true, 1
			case 2:
				fv.TotalTxns, fv.AvgTxnAmt, fv.PctTravel, fv.PctWalletUse, fv.UniqueCities = 90+i%3, 12000+jitter(), 0.6+jitter(), 0.9, 12
			}
			table = append(table, fv)
		}
	}
	return table
}

func TestFit_Reproducible(t *testing.T) {
	table := blobs(20)
	params := DefaultParams()

	first, _, err := Fit(context.Background(), table, params)
	require.NoError(t, err)
	second, _, err := Fit(context.Background(), table, params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFit_IndependentOfInputOrder(t *testing.T) {
	table := blobs(15)
	reversed := make(domain.FeatureTable, len(table))
	for i, fv := range table {
		reversed[len(table)-1-i] = fv
	}

	a, _, err := Fit(context.Background(), table, DefaultParams())
	require.NoError(t, err)
	b, _, err := Fit(context.Background(), reversed, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFit_RecoversSeparatedGroups(t *testing.T) {
	table := blobs(10)

	assignments, model, err := Fit(context.Background(), table, DefaultParams())
	require.NoError(t, err)
	require.Len(t, assignments, len(table))

	byAccount := map[int64]int{}
	for _, a := range assignments {
		assert.GreaterOrEqual(t, a.SegmentID, 0)
		assert.Less(t, a.SegmentID, 3)
		byAccount[a.AccountID] = a.SegmentID
	}

	// Every group maps to exactly one segment, and the three segments differ.
	groupSegment := map[int]int{}
	for i, fv := range table {
		g := i / 10
		seg := byAccount[fv.AccountID]
		if prev, ok := groupSegment[g]; ok {
			assert.Equal(t, prev, seg, "group %d split across segments", g)
		}
		groupSegment[g] = seg
	}
	assert.Len(t, map[int]bool{groupSegment[0]: true, groupSegment[1]: true, groupSegment[2]: true}, 3)

	assert.Len(t, model.Centroids, 3)
	assert.Equal(t, Columns, model.Columns)
	assert.False(t, math.IsNaN(model.Inertia))
}

func TestFit_InsufficientData(t *testing.T) {
	table := domain.FeatureTable{
		{AccountID: 1, TotalTxns: 1, AvgTxnAmt: 10},
		{AccountID: 2, TotalTxns: 2, AvgTxnAmt: 20},
	}

	_, _, err := Fit(context.Background(), table, DefaultParams())
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestFit_MissingValue(t *testing.T) {
	table := blobs(2)
	table[1].AvgTxnAmt = math.NaN()

	_, _, err := Fit(context.Background(), table, DefaultParams())
	assert.ErrorIs(t, err, domain.ErrMissingValue)

	table[1].AvgTxnAmt = math.Inf(1)
	_, _, err = Fit(context.Background(), table, DefaultParams())
	assert.ErrorIs(t, err, domain.ErrMissingValue)
}

func TestFit_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero k", func(p *Params) { p.K = 0 }},
		{"zero n_init", func(p *Params) { p.NInit = 0 }},
		{"zero max_iter", func(p *Params) { p.MaxIter = 0 }},
		{"negative tolerance", func(p *Params) { p.Tolerance = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			tt.mutate(&params)
			_, _, err := Fit(context.Background(), blobs(3), params)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestFit_DuplicateAccount(t *testing.T) {
	table := blobs(3)
	table = append(table, table[0])

	_, _, err := Fit(context.Background(), table, DefaultParams())
	assert.Error(t, err)
}

func TestFit_IdenticalAccounts(t *testing.T) {
	table := domain.FeatureTable{
		{AccountID: 1, TotalTxns: 5, AvgTxnAmt: 10},
		{AccountID: 2, TotalTxns: 5, AvgTxnAmt: 10},
		{AccountID: 3, TotalTxns: 5, AvgTxnAmt: 10},
		{AccountID: 4, TotalTxns: 5, AvgTxnAmt: 10},
	}

	assignments, model, err := Fit(context.Background(), table, DefaultParams())
	require.NoError(t, err)
	assert.Len(t, assignments, 4)
	assert.Equal(t, 0.0, model.Inertia)
}

func TestFit_SingleCluster(t *testing.T) {
	params := DefaultParams()
	params.K = 1

	assignments, _, err := Fit(context.Background(), blobs(4), params)
	require.NoError(t, err)
	for _, a := range assignments {
		assert.Equal(t, 0, a.SegmentID)
	}
}

func TestScaler_Standardizes(t *testing.T) {
	x := [][]float64{{1, 5}, {3, 5}, {5, 5}}

	sc := fitScaler(x)
	z := sc.transform(x)

	assert.InDeltaSlice(t, []float64{3, 5}, sc.means, 1e-12)
	assert.InDelta(t, math.Sqrt(8.0/3.0), sc.scales[0], 1e-12)
	assert.Equal(t, 1.0, sc.scales[1], "zero-variance column keeps unit scale")
	assert.InDelta(t, 0.0, z[1][0], 1e-12)
	assert.Equal(t, 0.0, z[0][1])
}

func TestEncode_SalaryDropFirst(t *testing.T) {
	row := encode(domain.FeatureVector{SalaryFlag: true, TotalTxns: 3})
	assert.Len(t, row, len(Columns))
	assert.Equal(t, 1.0, row[len(row)-1])
	assert.Equal(t, 0.0, encode(domain.FeatureVector{})[len(row)-1])
}
