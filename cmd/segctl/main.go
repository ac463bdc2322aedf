package main

import (
	"fmt"
	"os"

	"github.com/dvloznov/card-segments/internal/config"
	"github.com/dvloznov/card-segments/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "segctl",
	Short: "Build and query behavioral segments of card accounts",
	Long: `segctl runs the segmentation pipeline (aggregate, cluster, merge, publish)
and answers lookups against the published canonical account table.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SEGMENTS_CONFIG"), "Path to YAML config (or set SEGMENTS_CONFIG env)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level, overrides log.level")
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	// Logs go to stderr so command output stays parseable.
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Console: cfg.Log.Console, Output: os.Stderr})
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
