package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresSource reads raw transactions from a PostgreSQL table.
type PostgresSource struct {
	db      *sqlx.DB
	table   string
	columns Columns
	timeout time.Duration
}

// NewPostgresSource wraps an open connection. timeout bounds a single Load; zero means no limit.
func NewPostgresSource(db *sqlx.DB, table string, columns Columns, timeout time.Duration) *PostgresSource {
	return &PostgresSource{db: db, table: table, columns: columns.WithDefaults(), timeout: timeout}
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenPostgres: %w", err)
	}
	return db, nil
}

// Name identifies the source in logs.
func (s *PostgresSource) Name() string {
	return "postgres:" + s.table
}

type transactionRow struct {
	AccountID       sql.NullInt64       `db:"account_id"`
	Amount          decimal.NullDecimal `db:"amount"`
	CategoryCode    sql.NullInt64       `db:"category_code"`
	TransactionType sql.NullString      `db:"transaction_type"`
	WalletType      sql.NullString      `db:"wallet_type"`
	MerchantCity    sql.NullString      `db:"merchant_city"`
}

func (s *PostgresSource) query() string {
	c := s.columns
	return fmt.Sprintf(`
		SELECT
			%s AS account_id,
			%s AS amount,
			%s AS category_code,
			%s AS transaction_type,
			%s AS wallet_type,
			%s AS merchant_city
		FROM %s`,
		pq.QuoteIdentifier(c.AccountID),
		pq.QuoteIdentifier(c.Amount),
		pq.QuoteIdentifier(c.CategoryCode),
		pq.QuoteIdentifier(c.TransactionType),
		pq.QuoteIdentifier(c.WalletType),
		pq.QuoteIdentifier(c.MerchantCity),
		pq.QuoteIdentifier(s.table),
	)
}

// Load selects every row of the table. Rows without an amount are skipped and counted in the batch.
func (s *PostgresSource) Load(ctx context.Context) (Batch, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, s.query()); err != nil {
		return Batch{}, fmt.Errorf("PostgresSource.Load: select from %s: %w", s.table, err)
	}

	out := make([]domain.Transaction, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if !r.Amount.Valid {
			skipped++
			continue
		}
		out = append(out, r.toDomain())
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("table", s.table).
		Int("rows", len(rows)).
		Int("skipped_without_amount", skipped).
		Msg("Loaded transactions from postgres")

	return Batch{Transactions: out, SkippedNoAmount: skipped}, nil
}

func (r transactionRow) toDomain() domain.Transaction {
	tx := domain.Transaction{
		Amount:          r.Amount.Decimal,
		TransactionType: r.TransactionType.String,
	}
	if r.AccountID.Valid {
		id := r.AccountID.Int64
		tx.AccountID = &id
	}
	if r.CategoryCode.Valid {
		code := int(r.CategoryCode.Int64)
		tx.CategoryCode = &code
	}
	if r.WalletType.Valid {
		w := r.WalletType.String
		tx.WalletType = &w
	}
	if r.MerchantCity.Valid {
		city := r.MerchantCity.String
		tx.MerchantCity = &city
	}
	return tx
}

var _ Source = (*PostgresSource)(nil)
