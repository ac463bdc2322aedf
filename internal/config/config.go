// Package config loads runtime configuration from an optional YAML file and
// SEGMENTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/features"
	"github.com/dvloznov/card-segments/internal/segmentation"
	"github.com/dvloznov/card-segments/internal/source"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. SEGMENTS_MODEL_K=4.
const EnvPrefix = "SEGMENTS"

// Source kinds.
const (
	SourceParquet  = "parquet"
	SourcePostgres = "postgres"
	SourceBigQuery = "bigquery"
)

// Store kinds.
const (
	StoreFile = "file"
	StoreGCS  = "gcs"
)

// Config is the full runtime configuration.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Store    StoreConfig    `mapstructure:"store"`
	Export   ExportConfig   `mapstructure:"export"`
	Features FeaturesConfig `mapstructure:"features"`
	Model    ModelConfig    `mapstructure:"model"`
	Segments SegmentsConfig `mapstructure:"segments"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// SourceConfig selects where raw transactions are read from.
type SourceConfig struct {
	Kind    string         `mapstructure:"kind"`
	Path    string         `mapstructure:"path"`    // parquet
	DSN     string         `mapstructure:"dsn"`     // postgres
	Table   string         `mapstructure:"table"`   // postgres, bigquery
	Project string         `mapstructure:"project"` // bigquery
	Dataset string         `mapstructure:"dataset"` // bigquery
	Timeout time.Duration  `mapstructure:"timeout"`
	Columns source.Columns `mapstructure:"columns"`
}

// StoreConfig selects where the canonical table is published.
type StoreConfig struct {
	Kind string `mapstructure:"kind"`
	Path string `mapstructure:"path"` // file
	URI  string `mapstructure:"uri"`  // gcs, gs://bucket/object
}

// ExportConfig configures the optional BigQuery copy of the canonical table.
type ExportConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
	Table   string `mapstructure:"table"`
}

// FeaturesConfig holds the category sets of the aggregator.
type FeaturesConfig struct {
	FoodCodes   []int  `mapstructure:"food_codes"`
	TravelCodes []int  `mapstructure:"travel_codes"`
	SalaryType  string `mapstructure:"salary_type"`
}

// ModelConfig mirrors segmentation.Params.
type ModelConfig struct {
	K         int     `mapstructure:"k"`
	Seed      int64   `mapstructure:"seed"`
	NInit     int     `mapstructure:"n_init"`
	MaxIter   int     `mapstructure:"max_iter"`
	Tolerance float64 `mapstructure:"tolerance"`
}

// SegmentsConfig points at an optional descriptor override file.
type SegmentsConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
}

// ServerConfig configures cmd/api.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	QueueSize       int           `mapstructure:"queue_size"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RebuildOnStart  bool          `mapstructure:"rebuild_on_start"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	cols := source.DefaultColumns()
	params := segmentation.DefaultParams()

	v.SetDefault("source.kind", SourceParquet)
	v.SetDefault("source.path", "data/transactions.parquet")
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.table", "card_transactions")
	v.SetDefault("source.project", "")
	v.SetDefault("source.dataset", "")
	v.SetDefault("source.timeout", 5*time.Minute)
	v.SetDefault("source.columns.account_id", cols.AccountID)
	v.SetDefault("source.columns.amount", cols.Amount)
	v.SetDefault("source.columns.category_code", cols.CategoryCode)
	v.SetDefault("source.columns.transaction_type", cols.TransactionType)
	v.SetDefault("source.columns.wallet_type", cols.WalletType)
	v.SetDefault("source.columns.merchant_city", cols.MerchantCity)

	v.SetDefault("store.kind", StoreFile)
	v.SetDefault("store.path", "data/clients.parquet")
	v.SetDefault("store.uri", "")

	v.SetDefault("export.enabled", false)
	v.SetDefault("export.project", "")
	v.SetDefault("export.dataset", "")
	v.SetDefault("export.table", "account_segments")

	v.SetDefault("features.food_codes", features.DefaultFoodCodes)
	v.SetDefault("features.travel_codes", features.DefaultTravelCodes)
	v.SetDefault("features.salary_type", features.DefaultSalaryType)

	v.SetDefault("model.k", params.K)
	v.SetDefault("model.seed", params.Seed)
	v.SetDefault("model.n_init", params.NInit)
	v.SetDefault("model.max_iter", params.MaxIter)
	v.SetDefault("model.tolerance", params.Tolerance)

	v.SetDefault("segments.catalog_path", "")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.queue_size", 16)
	v.SetDefault("server.max_retries", 2)
	v.SetDefault("server.rebuild_on_start", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no file and no environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate reports every configuration problem at once, each wrapping
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format+": %w", append(args, domain.ErrInvalidConfig)...))
	}

	switch c.Source.Kind {
	case SourceParquet:
		if c.Source.Path == "" {
			add("source.path is required for parquet source")
		}
	case SourcePostgres:
		if c.Source.DSN == "" {
			add("source.dsn is required for postgres source")
		}
	case SourceBigQuery:
		if c.Source.Project == "" || c.Source.Dataset == "" {
			add("source.project and source.dataset are required for bigquery source")
		}
	default:
		add("unknown source.kind %q", c.Source.Kind)
	}

	switch c.Store.Kind {
	case StoreFile:
		if c.Store.Path == "" {
			add("store.path is required for file store")
		}
	case StoreGCS:
		if !strings.HasPrefix(c.Store.URI, "gs://") {
			add("store.uri must be a gs:// URI for gcs store")
		}
	default:
		add("unknown store.kind %q", c.Store.Kind)
	}

	if c.Export.Enabled && (c.Export.Project == "" || c.Export.Dataset == "" || c.Export.Table == "") {
		add("export.project, export.dataset and export.table are required when export is enabled")
	}

	if overlap := c.CategorySets().Overlap(); len(overlap) > 0 {
		add("food and travel codes overlap: %v", overlap)
	}

	if c.Model.K < 1 {
		add("model.k must be >= 1, got %d", c.Model.K)
	}
	if c.Model.NInit < 1 {
		add("model.n_init must be >= 1, got %d", c.Model.NInit)
	}
	if c.Model.MaxIter < 1 {
		add("model.max_iter must be >= 1, got %d", c.Model.MaxIter)
	}
	if c.Model.Tolerance < 0 {
		add("model.tolerance must be >= 0, got %g", c.Model.Tolerance)
	}

	if c.Server.RateLimit < 0 {
		add("server.rate_limit must be >= 0")
	}
	if c.Server.QueueSize < 1 {
		add("server.queue_size must be >= 1")
	}
	if c.Server.MaxRetries < 0 {
		add("server.max_retries must be >= 0, got %d", c.Server.MaxRetries)
	}

	return errors.Join(errs...)
}

// CategorySets builds the aggregator's membership sets.
func (c *Config) CategorySets() features.CategorySets {
	return features.NewCategorySets(c.Features.FoodCodes, c.Features.TravelCodes, c.Features.SalaryType)
}

// Params builds the segmentation parameters.
func (c *Config) Params() segmentation.Params {
	return segmentation.Params{
		K:         c.Model.K,
		Seed:      c.Model.Seed,
		NInit:     c.Model.NInit,
		MaxIter:   c.Model.MaxIter,
		Tolerance: c.Model.Tolerance,
	}
}
