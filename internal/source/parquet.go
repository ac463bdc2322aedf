package source

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/card-segments/internal/columnar"
	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/shopspring/decimal"
)

// ParquetSource reads raw transactions from a local Parquet file.
type ParquetSource struct {
	path    string
	columns Columns
}

// NewParquetSource creates a source for path using the given column names.
func NewParquetSource(path string, columns Columns) *ParquetSource {
	return &ParquetSource{path: path, columns: columns.WithDefaults()}
}

// Name identifies the source in logs.
func (s *ParquetSource) Name() string {
	return "parquet:" + s.path
}

// Load reads every row. Missing columns fail the load; rows without an amount are
// skipped and counted in the batch.
func (s *ParquetSource) Load(ctx context.Context) (Batch, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: open %q: %w", s.path, err)
	}
	defer f.Close()

	tbl, err := columnar.ReadParquet(ctx, f)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %w", err)
	}
	defer tbl.Release()

	c := s.columns
	if missing := missingColumns(tbl, c); len(missing) > 0 {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %s lacks %v: %w", s.path, missing, columnar.ErrMissingColumn)
	}

	accounts, err := int64Column(tbl, c.AccountID)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %w", err)
	}
	amounts, err := floatColumn(tbl, c.Amount)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %w", err)
	}
	categories, err := int64Column(tbl, c.CategoryCode)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %w", err)
	}
	types, err := stringColumn(tbl, c.TransactionType)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %w", err)
	}
	wallets, err := stringColumn(tbl, c.WalletType)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %w", err)
	}
	cities, err := stringColumn(tbl, c.MerchantCity)
	if err != nil {
		return Batch{}, fmt.Errorf("ParquetSource.Load: %w", err)
	}

	out := make([]domain.Transaction, 0, tbl.NumRows())
	skipped := 0
	for i := 0; i < tbl.NumRows(); i++ {
		if amounts[i] == nil {
			skipped++
			continue
		}
		tx := domain.Transaction{
			AccountID:    accounts[i],
			Amount:       decimal.NewFromFloat(*amounts[i]),
			WalletType:   wallets[i],
			MerchantCity: cities[i],
		}
		if categories[i] != nil {
			code := int(*categories[i])
			tx.CategoryCode = &code
		}
		if types[i] != nil {
			tx.TransactionType = *types[i]
		}
		out = append(out, tx)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("path", s.path).
		Int("rows", tbl.NumRows()).
		Int("skipped_without_amount", skipped).
		Msg("Loaded transactions from parquet")

	return Batch{Transactions: out, SkippedNoAmount: skipped}, nil
}

func missingColumns(tbl *columnar.Table, c Columns) []string {
	var missing []string
	for _, name := range []string{c.AccountID, c.Amount, c.CategoryCode, c.TransactionType, c.WalletType, c.MerchantCity} {
		if !tbl.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func int64Column(tbl *columnar.Table, name string) ([]*int64, error) {
	col, err := tbl.Column(name)
	if err != nil {
		return nil, err
	}
	return col.Int64s()
}

func floatColumn(tbl *columnar.Table, name string) ([]*float64, error) {
	col, err := tbl.Column(name)
	if err != nil {
		return nil, err
	}
	return col.Float64s()
}

func stringColumn(tbl *columnar.Table, name string) ([]*string, error) {
	col, err := tbl.Column(name)
	if err != nil {
		return nil, err
	}
	return col.Strings()
}

var _ Source = (*ParquetSource)(nil)
