package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dvloznov/card-segments/internal/app"
	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <account-id>",
	Short: "Show the features and segment of one account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid account id %q", args[0])
		}
		a, err := openLookup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, ok := a.Lookup.Get(id)
		if !ok {
			return fmt.Errorf("account %d not found", id)
		}
		return printRecord(cmd.OutOrStdout(), rec, a.Lookup.Describe(rec.SegmentID))
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Show a random account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openLookup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Lookup.Sample()
		if err != nil {
			return fmt.Errorf("no accounts published")
		}
		return printRecord(cmd.OutOrStdout(), rec, a.Lookup.Describe(rec.SegmentID))
	},
}

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Show the number of accounts per segment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openLookup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		dist := a.Lookup.Distribution()
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), dist)
		}

		total := 0
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "SEGMENT\tLABEL\tACCOUNTS")
		for _, c := range dist {
			fmt.Fprintf(tw, "%d\t%s\t%d\n", c.SegmentID, a.Lookup.Describe(c.SegmentID).Label, c.Count)
			total += c.Count
		}
		fmt.Fprintf(tw, "\tTotal\t%d\n", total)
		return tw.Flush()
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe [segment-id]",
	Short: "Show the label and description of a segment, or of every segment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := app.LoadCatalog(cfg)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			return printCatalog(cmd.OutOrStdout(), catalog.All())
		}

		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid segment id %q", args[0])
		}
		d := catalog.Describe(id)
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), d)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n%s\n", id, d.Label, d.Description)
		return nil
	},
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List every account id in the published table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openLookup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ids := a.Lookup.AccountIDs()
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), ids)
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd, sampleCmd, segmentsCmd, describeCmd, clientsCmd)
}

func openLookup(cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewReadOnly(logger.WithContext(cmd.Context(), log), cfg, log)
}

func printCatalog(w io.Writer, descriptors []domain.Descriptor) error {
	if outputFormat == "json" {
		return writeJSON(w, descriptors)
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SEGMENT\tLABEL\tDESCRIPTION")
	for _, d := range descriptors {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", d.SegmentID, d.Label, d.Description)
	}
	return tw.Flush()
}

func printRecord(w io.Writer, rec domain.Record, d domain.Descriptor) error {
	if outputFormat == "json" {
		return writeJSON(w, struct {
			Account domain.Record     `json:"account"`
			Segment domain.Descriptor `json:"segment"`
		}{rec, d})
	}

	tw := newTable(w)
	fmt.Fprintf(tw, "Account\t%d\n", rec.AccountID)
	fmt.Fprintf(tw, "Segment\t%d (%s)\n", rec.SegmentID, d.Label)
	fmt.Fprintf(tw, "\t%s\n", d.Description)
	fmt.Fprintf(tw, "Transactions\t%d\n", rec.TotalTxns)
	fmt.Fprintf(tw, "Average amount\t%.2f\n", rec.AvgTxnAmt)
	fmt.Fprintf(tw, "Food share\t%.1f%%\n", rec.PctFood*100)
	fmt.Fprintf(tw, "Travel share\t%.1f%%\n", rec.PctTravel*100)
	fmt.Fprintf(tw, "Wallet use\t%.1f%%\n", rec.PctWalletUse*100)
	fmt.Fprintf(tw, "Salary\t%t\n", rec.SalaryFlag)
	fmt.Fprintf(tw, "Cities\t%d\n", rec.UniqueCities)
	return tw.Flush()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
