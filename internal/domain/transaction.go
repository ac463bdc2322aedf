package domain

import (
	"github.com/shopspring/decimal"
)

// Transaction represents one raw card transaction as read from the source table.
// Nullable source columns are pointers; a nil AccountID marks a malformed row
// that the aggregator rejects.
type Transaction struct {
	AccountID       *int64          // from "card_id"
	Amount          decimal.Decimal // from "transaction_amount_kzt", signed
	CategoryCode    *int            // from "merchant_mcc" or nil
	TransactionType string          // from "transaction_type", e.g. SALARY, PURCHASE
	WalletType      *string         // from "wallet_type" or nil
	MerchantCity    *string         // from "merchant_city" or nil
}

// HasWallet reports whether the transaction went through a digital wallet.
func (t Transaction) HasWallet() bool {
	return t.WalletType != nil
}
