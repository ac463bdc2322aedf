package features

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Report summarizes one aggregation pass.
type Report struct {
	Input    int `json:"input"`
	Rejected int `json:"rejected"`
	Accounts int `json:"accounts"`
	// SkippedNoAmount is the number of rows the source dropped for a null amount.
	// They never reach Aggregate and are not part of Input.
	SkippedNoAmount int `json:"skipped_no_amount"`
}

// Aggregate reduces raw transactions into one FeatureVector per account.
// Rows without an account id are rejected and counted in the report. The result
// is ordered by AccountID and does not depend on the order of txns.
func Aggregate(ctx context.Context, txns []domain.Transaction, sets CategorySets) (domain.FeatureTable, Report, error) {
	log := logger.FromContext(ctx)
	report := Report{Input: len(txns)}

	groups := make(map[int64][]domain.Transaction)
	for _, tx := range txns {
		if tx.AccountID == nil {
			report.Rejected++
			continue
		}
		groups[*tx.AccountID] = append(groups[*tx.AccountID], tx)
	}

	if report.Rejected > 0 {
		log.Warn().
			Int("rejected", report.Rejected).
			Err(domain.ErrMalformedRecord).
			Msg("Rejected transactions without account id")
	}

	if len(groups) == 0 {
		return nil, report, fmt.Errorf("Aggregate: %d rows, none with an account id: %w", len(txns), domain.ErrEmptyInput)
	}

	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	table := make(domain.FeatureTable, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table[i] = reduceAccount(id, groups[id], sets)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, fmt.Errorf("Aggregate: %w", err)
	}

	report.Accounts = len(table)
	log.Info().
		Int("input", report.Input).
		Int("rejected", report.Rejected).
		Int("accounts", report.Accounts).
		Msg("Aggregated transactions into feature vectors")

	return table, report, nil
}

// reduceAccount computes the feature vector for a single account's transactions.
func reduceAccount(id int64, txns []domain.Transaction, sets CategorySets) domain.FeatureVector {
	fv := domain.FeatureVector{AccountID: id, TotalTxns: len(txns)}

	var (
		sum         = decimal.Zero
		categorized int
		food        int
		travel      int
		wallet      int
		cities      = make(map[string]struct{})
	)

	for _, tx := range txns {
		sum = sum.Add(tx.Amount)

		if tx.HasWallet() {
			wallet++
		}
		if tx.TransactionType == sets.SalaryType {
			fv.SalaryFlag = true
		}
		if tx.CategoryCode != nil {
			categorized++
			if sets.isFood(*tx.CategoryCode) {
				food++
			}
			if sets.isTravel(*tx.CategoryCode) {
				travel++
			}
		}
		if tx.MerchantCity != nil {
			cities[*tx.MerchantCity] = struct{}{}
		}
	}

	fv.AvgTxnAmt = ratioDecimal(sum, fv.TotalTxns)
	fv.PctFood = ratio(food, categorized)
	fv.PctTravel = ratio(travel, categorized)
	fv.PctWalletUse = ratio(wallet, fv.TotalTxns)
	fv.UniqueCities = len(cities)

	return fv
}

// ratio returns num/den, or 0 when den is zero.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func ratioDecimal(sum decimal.Decimal, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))).InexactFloat64()
}
