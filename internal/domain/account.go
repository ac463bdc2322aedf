package domain

// FeatureVector is the behavioral summary of one account's transactions.
type FeatureVector struct {
	AccountID    int64   `json:"card_id"`
	TotalTxns    int     `json:"total_txns"`
	AvgTxnAmt    float64 `json:"avg_txn_amt"`
	PctFood      float64 `json:"pct_food"`
	PctTravel    float64 `json:"pct_travel"`
	PctWalletUse float64 `json:"pct_wallet_use"`
	SalaryFlag   bool    `json:"salary_flag"`
	UniqueCities int     `json:"unique_cities"`
}

// FeatureTable holds one FeatureVector per account, ordered by AccountID.
type FeatureTable []FeatureVector

// Assignment maps an account to its behavioral segment.
type Assignment struct {
	AccountID int64 `json:"card_id"`
	SegmentID int   `json:"segment_id"`
}

// AssignmentTable holds one Assignment per clustered account.
type AssignmentTable []Assignment

// Record is the canonical, queryable row: an account's features joined with its segment.
type Record struct {
	FeatureVector
	SegmentID int `json:"segment_id"`
}

// CanonicalTable is the merged per-account table served by the lookup service.
type CanonicalTable []Record

// Descriptor is the human-facing text attached to a segment id.
type Descriptor struct {
	SegmentID   int    `json:"segment_id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
}

// SegmentCount is one entry of the segment distribution.
type SegmentCount struct {
	SegmentID int `json:"segment_id"`
	Count     int `json:"count"`
}
