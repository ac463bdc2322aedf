package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dvloznov/card-segments/internal/app"
	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/dvloznov/card-segments/internal/pipeline"
	"github.com/spf13/cobra"
)

var featuresOut string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full pipeline and publish the canonical table",
	Long: `Load raw transactions, aggregate per-account features, fit the segmentation
model, merge and replace the stored canonical table. On failure the previously
published table is left untouched.`,
	RunE: runBuild,
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Aggregate per-account features and write them as CSV",
	Example: `  segctl features --out features.csv
  segctl features > features.csv`,
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(buildCmd, featuresCmd)
	featuresCmd.Flags().StringVar(&featuresOut, "out", "", "Output file (default stdout)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := logger.WithContext(cmd.Context(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Runner.Run(ctx)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), a, res)
}

func printResult(w io.Writer, a *app.App, res *pipeline.Result) error {
	if outputFormat == "json" {
		return writeJSON(w, res)
	}

	tw := newTable(w)
	fmt.Fprintf(tw, "Run\t%s\n", res.RunID)
	fmt.Fprintf(tw, "Published\t%s\n", res.Location)
	fmt.Fprintf(tw, "Transactions\t%d (%d rejected, %d skipped without amount)\n", res.Report.Input, res.Report.Rejected, res.Report.SkippedNoAmount)
	fmt.Fprintf(tw, "Accounts\t%d\n", res.Records)
	fmt.Fprintf(tw, "Inertia\t%.4f after %d iterations\n", res.Model.Inertia, res.Model.Iterations)
	fmt.Fprintf(tw, "Duration\t%s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	if res.ExportError != "" {
		fmt.Fprintf(tw, "Export\tFAILED: %s\n", res.ExportError)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "SEGMENT\tLABEL\tACCOUNTS")
	for _, c := range res.Distribution {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", c.SegmentID, a.Lookup.Describe(c.SegmentID).Label, c.Count)
	}
	return tw.Flush()
}

func runFeatures(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := logger.WithContext(cmd.Context(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	table, report, err := a.Runner.BuildFeatures(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("accounts", report.Accounts).Int("rejected", report.Rejected).Int("skipped_no_amount", report.SkippedNoAmount).Msg("Features aggregated")

	out := cmd.OutOrStdout()
	if featuresOut != "" {
		f, err := os.Create(featuresOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeFeaturesCSV(ctx, out, table)
}

var featureHeader = []string{
	"card_id", "total_txns", "avg_txn_amt", "pct_food", "pct_travel",
	"pct_wallet_use", "salary_flag", "unique_cities",
}

func writeFeaturesCSV(ctx context.Context, w io.Writer, table domain.FeatureTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(featureHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, fv := range table {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write([]string{
			strconv.FormatInt(fv.AccountID, 10),
			strconv.Itoa(fv.TotalTxns),
			f(fv.AvgTxnAmt),
			f(fv.PctFood),
			f(fv.PctTravel),
			f(fv.PctWalletUse),
			strconv.FormatBool(fv.SalaryFlag),
			strconv.Itoa(fv.UniqueCities),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
