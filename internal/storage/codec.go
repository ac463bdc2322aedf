package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/dvloznov/card-segments/internal/columnar"
	"github.com/dvloznov/card-segments/internal/domain"
)

// Column names of the canonical table file.
const (
	colAccountID    = "card_id"
	colTotalTxns    = "total_txns"
	colAvgTxnAmt    = "avg_txn_amt"
	colPctFood      = "pct_food"
	colPctTravel    = "pct_travel"
	colPctWalletUse = "pct_wallet_use"
	colSalaryFlag   = "salary_flag"
	colUniqueCities = "unique_cities"
	colSegmentID    = "segment_id"
)

// CanonicalSchema is the Arrow schema of the canonical table file.
var CanonicalSchema = arrow.NewSchema([]arrow.Field{
	{Name: colAccountID, Type: arrow.PrimitiveTypes.Int64},
	{Name: colTotalTxns, Type: arrow.PrimitiveTypes.Int64},
	{Name: colAvgTxnAmt, Type: arrow.PrimitiveTypes.Float64},
	{Name: colPctFood, Type: arrow.PrimitiveTypes.Float64},
	{Name: colPctTravel, Type: arrow.PrimitiveTypes.Float64},
	{Name: colPctWalletUse, Type: arrow.PrimitiveTypes.Float64},
	{Name: colSalaryFlag, Type: arrow.FixedWidthTypes.Boolean},
	{Name: colUniqueCities, Type: arrow.PrimitiveTypes.Int64},
	{Name: colSegmentID, Type: arrow.PrimitiveTypes.Int64},
}, nil)

// EncodeParquet serializes the canonical table as a Parquet file.
func EncodeParquet(table domain.CanonicalTable) ([]byte, error) {
	b := array.NewRecordBuilder(memory.DefaultAllocator, CanonicalSchema)
	defer b.Release()

	ids := b.Field(0).(*array.Int64Builder)
	txns := b.Field(1).(*array.Int64Builder)
	avg := b.Field(2).(*array.Float64Builder)
	food := b.Field(3).(*array.Float64Builder)
	travel := b.Field(4).(*array.Float64Builder)
	wallet := b.Field(5).(*array.Float64Builder)
	salary := b.Field(6).(*array.BooleanBuilder)
	cities := b.Field(7).(*array.Int64Builder)
	segs := b.Field(8).(*array.Int64Builder)

	for _, r := range table {
		ids.Append(r.AccountID)
		txns.Append(int64(r.TotalTxns))
		avg.Append(r.AvgTxnAmt)
		food.Append(r.PctFood)
		travel.Append(r.PctTravel)
		wallet.Append(r.PctWalletUse)
		salary.Append(r.SalaryFlag)
		cities.Append(int64(r.UniqueCities))
		segs.Append(int64(r.SegmentID))
	}

	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	if err := columnar.WriteParquet(&buf, rec); err != nil {
		return nil, fmt.Errorf("EncodeParquet: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet parses a canonical table file. Every column is required and
// null values are rejected.
func DecodeParquet(ctx context.Context, data []byte) (domain.CanonicalTable, error) {
	tbl, err := columnar.ReadParquet(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("DecodeParquet: %w", err)
	}
	defer tbl.Release()

	ints := map[string][]*int64{}
	for _, name := range []string{colAccountID, colTotalTxns, colUniqueCities, colSegmentID} {
		col, err := tbl.Column(name)
		if err != nil {
			return nil, fmt.Errorf("DecodeParquet: %w", err)
		}
		if ints[name], err = col.Int64s(); err != nil {
			return nil, fmt.Errorf("DecodeParquet: %w", err)
		}
	}

	floats := map[string][]*float64{}
	for _, name := range []string{colAvgTxnAmt, colPctFood, colPctTravel, colPctWalletUse} {
		col, err := tbl.Column(name)
		if err != nil {
			return nil, fmt.Errorf("DecodeParquet: %w", err)
		}
		if floats[name], err = col.Float64s(); err != nil {
			return nil, fmt.Errorf("DecodeParquet: %w", err)
		}
	}

	salaryCol, err := tbl.Column(colSalaryFlag)
	if err != nil {
		return nil, fmt.Errorf("DecodeParquet: %w", err)
	}
	salary, err := salaryCol.Bools()
	if err != nil {
		return nil, fmt.Errorf("DecodeParquet: %w", err)
	}

	n := tbl.NumRows()
	table := make(domain.CanonicalTable, n)
	for i := 0; i < n; i++ {
		for name, col := range ints {
			if col[i] == nil {
				return nil, fmt.Errorf("DecodeParquet: row %d: null %s: %w", i, name, domain.ErrMalformedRecord)
			}
		}
		for name, col := range floats {
			if col[i] == nil {
				return nil, fmt.Errorf("DecodeParquet: row %d: null %s: %w", i, name, domain.ErrMalformedRecord)
			}
		}
		if salary[i] == nil {
			return nil, fmt.Errorf("DecodeParquet: row %d: null %s: %w", i, colSalaryFlag, domain.ErrMalformedRecord)
		}

		table[i] = domain.Record{
			FeatureVector: domain.FeatureVector{
				AccountID:    *ints[colAccountID][i],
				TotalTxns:    int(*ints[colTotalTxns][i]),
				AvgTxnAmt:    *floats[colAvgTxnAmt][i],
				PctFood:      *floats[colPctFood][i],
				PctTravel:    *floats[colPctTravel][i],
				PctWalletUse: *floats[colPctWalletUse][i],
				SalaryFlag:   *salary[i],
				UniqueCities: int(*ints[colUniqueCities][i]),
			},
			SegmentID: int(*ints[colSegmentID][i]),
		}
	}
	return table, nil
}
