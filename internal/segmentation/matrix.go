package segmentation

import (
	"fmt"
	"math"
	"sort"

	"github.com/dvloznov/card-segments/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Columns lists the feature matrix layout. salary_flag is binary-encoded with
// the false level dropped, so it contributes a single 0/1 column.
var Columns = []string{
	"total_txns",
	"avg_txn_amt",
	"pct_food",
	"pct_travel",
	"pct_wallet_use",
	"unique_cities",
	"salary_flag_True",
}

// encode turns a feature vector into a matrix row in Columns order.
func encode(fv domain.FeatureVector) []float64 {
	salary := 0.0
	if fv.SalaryFlag {
		salary = 1
	}
	return []float64{
		float64(fv.TotalTxns),
		fv.AvgTxnAmt,
		fv.PctFood,
		fv.PctTravel,
		fv.PctWalletUse,
		float64(fv.UniqueCities),
		salary,
	}
}

// buildMatrix orders the table by account id and encodes every row.
// It fails on any NaN or infinite value instead of dropping the row.
func buildMatrix(table domain.FeatureTable) ([]int64, [][]float64, error) {
	rows := append(domain.FeatureTable(nil), table...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].AccountID < rows[j].AccountID })

	ids := make([]int64, len(rows))
	x := make([][]float64, len(rows))
	for i, fv := range rows {
		if i > 0 && rows[i-1].AccountID == fv.AccountID {
			return nil, nil, fmt.Errorf("duplicate account %d in feature table", fv.AccountID)
		}
		row := encode(fv)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, fmt.Errorf("account %d column %s: %w", fv.AccountID, Columns[j], domain.ErrMissingValue)
			}
		}
		ids[i] = fv.AccountID
		x[i] = row
	}
	return ids, x, nil
}

// scaler holds per-column population mean and standard deviation.
type scaler struct {
	means  []float64
	scales []float64
}

// fitScaler computes column statistics on x. Zero-variance columns keep scale 1
// so they standardize to zero rather than dividing by zero.
func fitScaler(x [][]float64) scaler {
	cols := len(x[0])
	s := scaler{means: make([]float64, cols), scales: make([]float64, cols)}
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.means[j] = mean
		s.scales[j] = std
	}
	return s
}

// transform returns a standardized copy of x.
func (s scaler) transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		z := make([]float64, len(row))
		for j, v := range row {
			z[j] = (v - s.means[j]) / s.scales[j]
		}
		out[i] = z
	}
	return out
}

// meanVariance is the average per-column variance of x, used to scale the tolerance.
func meanVariance(x [][]float64) float64 {
	cols := len(x[0])
	col := make([]float64, len(x))
	total := 0.0
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		total += v
	}
	return total / float64(cols)
}
