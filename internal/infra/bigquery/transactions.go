package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/dvloznov/card-segments/internal/source"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

// TransactionRow is one row of the raw card transactions table.
type TransactionRow struct {
	CardID          bigquery.NullInt64  `bigquery:"card_id"`
	Amount          *big.Rat            `bigquery:"transaction_amount_kzt"` // NUMERIC, NULLABLE
	MerchantMCC     bigquery.NullInt64  `bigquery:"merchant_mcc"`
	TransactionType bigquery.NullString `bigquery:"transaction_type"`
	WalletType      bigquery.NullString `bigquery:"wallet_type"`
	MerchantCity    bigquery.NullString `bigquery:"merchant_city"`
}

// ToDomain converts the row. ok is false when the row has no amount.
func (r *TransactionRow) ToDomain() (tx domain.Transaction, ok bool, err error) {
	if r.Amount == nil {
		return domain.Transaction{}, false, nil
	}

	amount, err := decimal.NewFromString(r.Amount.FloatString(9))
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("amount %s: %w", r.Amount.String(), err)
	}

	tx = domain.Transaction{
		Amount:          amount,
		TransactionType: r.TransactionType.StringVal,
	}
	if r.CardID.Valid {
		id := r.CardID.Int64
		tx.AccountID = &id
	}
	if r.MerchantMCC.Valid {
		code := int(r.MerchantMCC.Int64)
		tx.CategoryCode = &code
	}
	if r.WalletType.Valid {
		w := r.WalletType.StringVal
		tx.WalletType = &w
	}
	if r.MerchantCity.Valid {
		city := r.MerchantCity.StringVal
		tx.MerchantCity = &city
	}
	return tx, true, nil
}

// TransactionReader reads the raw transactions table as a pipeline source.
type TransactionReader struct {
	repo    *Repository
	table   string
	columns source.Columns
}

// NewTransactionReader creates a reader for the given table in the repository's dataset.
// Empty column names fall back to source.DefaultColumns.
func NewTransactionReader(repo *Repository, table string, columns source.Columns) *TransactionReader {
	return &TransactionReader{repo: repo, table: table, columns: columns.WithDefaults()}
}

// Name identifies the source in logs.
func (r *TransactionReader) Name() string {
	return "bigquery:" + r.repo.dataset.DatasetID + "." + r.table
}

// Load reads every raw transaction.
func (r *TransactionReader) Load(ctx context.Context) (source.Batch, error) {
	return QueryTransactionsWithClient(ctx, r.repo.client, r.repo.dataset, r.table, r.columns)
}

// transactionsQuery selects the configured columns under the names TransactionRow expects.
func transactionsQuery(dataset Dataset, table string, c source.Columns) string {
	return fmt.Sprintf(`
		SELECT
			%s AS card_id,
			CAST(%s AS NUMERIC) AS transaction_amount_kzt,
			CAST(%s AS INT64) AS merchant_mcc,
			%s AS transaction_type,
			%s AS wallet_type,
			%s AS merchant_city
		FROM %s
	`,
		quoteIdent(c.AccountID),
		quoteIdent(c.Amount),
		quoteIdent(c.CategoryCode),
		quoteIdent(c.TransactionType),
		quoteIdent(c.WalletType),
		quoteIdent(c.MerchantCity),
		dataset.tableRef(table),
	)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

// QueryTransactionsWithClient reads every row of the raw transactions table using the
// provided client. Rows without an amount are skipped and counted in the batch.
func QueryTransactionsWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, table string, columns source.Columns) (source.Batch, error) {
	q := client.Query(transactionsQuery(dataset, table, columns.WithDefaults()))

	it, err := q.Read(ctx)
	if err != nil {
		return source.Batch{}, fmt.Errorf("QueryTransactions: query read: %w", err)
	}

	var batch source.Batch
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return source.Batch{}, fmt.Errorf("QueryTransactions: iter next: %w", err)
		}

		tx, ok, err := row.ToDomain()
		if err != nil {
			return source.Batch{}, fmt.Errorf("QueryTransactions: %w", err)
		}
		if !ok {
			batch.SkippedNoAmount++
			continue
		}
		batch.Transactions = append(batch.Transactions, tx)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("table", table).
		Int("rows", len(batch.Transactions)+batch.SkippedNoAmount).
		Int("skipped_without_amount", batch.SkippedNoAmount).
		Msg("Loaded transactions from bigquery")

	return batch, nil
}
