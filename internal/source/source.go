package source

import (
	"context"

	"github.com/dvloznov/card-segments/internal/domain"
)

// Source loads the full raw transaction table for one pipeline run.
type Source interface {
	Load(ctx context.Context) (Batch, error)
	Name() string
}

// Batch is the result of one source read.
type Batch struct {
	Transactions []domain.Transaction
	// SkippedNoAmount counts rows dropped because their amount was null.
	SkippedNoAmount int
}

// Columns names the raw table columns. Zero values fall back to DefaultColumns.
type Columns struct {
	AccountID       string `mapstructure:"account_id"`
	Amount          string `mapstructure:"amount"`
	CategoryCode    string `mapstructure:"category_code"`
	TransactionType string `mapstructure:"transaction_type"`
	WalletType      string `mapstructure:"wallet_type"`
	MerchantCity    string `mapstructure:"merchant_city"`
}

// DefaultColumns matches the column names of the card transaction export.
func DefaultColumns() Columns {
	return Columns{
		AccountID:       "card_id",
		Amount:          "transaction_amount_kzt",
		CategoryCode:    "merchant_mcc",
		TransactionType: "transaction_type",
		WalletType:      "wallet_type",
		MerchantCity:    "merchant_city",
	}
}

// WithDefaults fills empty names from DefaultColumns.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	if c.AccountID == "" {
		c.AccountID = d.AccountID
	}
	if c.Amount == "" {
		c.Amount = d.Amount
	}
	if c.CategoryCode == "" {
		c.CategoryCode = d.CategoryCode
	}
	if c.TransactionType == "" {
		c.TransactionType = d.TransactionType
	}
	if c.WalletType == "" {
		c.WalletType = d.WalletType
	}
	if c.MerchantCity == "" {
		c.MerchantCity = d.MerchantCity
	}
	return c
}

// Static serves a fixed slice of transactions. It backs tests and in-process rebuilds.
type Static struct {
	Transactions    []domain.Transaction
	SkippedNoAmount int
}

// Load returns the configured transactions.
func (s *Static) Load(ctx context.Context) (Batch, error) {
	return Batch{Transactions: s.Transactions, SkippedNoAmount: s.SkippedNoAmount}, nil
}

// Name identifies the source in logs.
func (s *Static) Name() string {
	return "static"
}
