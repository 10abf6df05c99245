// Package config loads settings from defaults, an optional YAML file, a .env
// file and STATEMENT_IMPORT_* environment variables, in rising precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/insightdelivered/statement-import/internal/dedup"
	"github.com/insightdelivered/statement-import/internal/extractor"
	"github.com/insightdelivered/statement-import/internal/llm"
	"github.com/insightdelivered/statement-import/internal/reconcile"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "STATEMENT_IMPORT"

// Config is the full application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        llm.Config       `mapstructure:"llm"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	Categorize CategorizeConfig `mapstructure:"categorize"`
	Advisor    AdvisorConfig    `mapstructure:"advisor"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// BodyLimitMB caps upload size.
	BodyLimitMB int `mapstructure:"body_limit_mb"`
}

type DedupConfig struct {
	DateTolerance       time.Duration `mapstructure:"date_tolerance"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
}

// ReconcileConfig holds amounts as floats; they are converted to decimals
// once, in Engine.
type ReconcileConfig struct {
	Epsilon                float64 `mapstructure:"epsilon"`
	NegligibleThreshold    float64 `mapstructure:"negligible_threshold"`
	ValidityTolerance      float64 `mapstructure:"validity_tolerance"`
	MaxContextTransactions int     `mapstructure:"max_context_transactions"`
	MaxSuggestions         int     `mapstructure:"max_suggestions"`
}

type OCRConfig struct {
	DPI      int `mapstructure:"dpi"`
	MaxPages int `mapstructure:"max_pages"`
}

type CategorizeConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type AdvisorConfig struct {
	// PatternsFile optionally replaces the built-in description patterns.
	PatternsFile string `mapstructure:"patterns_file"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.path", DefaultDatabasePath())

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.body_limit_mb", 32)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", "120s")

	v.SetDefault("dedup.date_tolerance", "24h")
	v.SetDefault("dedup.similarity_threshold", 0.85)

	v.SetDefault("reconcile.epsilon", 0.01)
	v.SetDefault("reconcile.negligible_threshold", 100)
	v.SetDefault("reconcile.validity_tolerance", 1000)
	v.SetDefault("reconcile.max_context_transactions", 50)
	v.SetDefault("reconcile.max_suggestions", 5)

	v.SetDefault("ocr.dpi", 200)
	v.SetDefault("ocr.max_pages", 0)

	v.SetDefault("categorize.batch_size", llm.DefaultBatchSize)

	v.SetDefault("advisor.patterns_file", "")
}

// DefaultDatabasePath is the database location when none is configured.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "statement-import.db"
	}
	return filepath.Join(home, ".local", "share", "statement-import", "import.db")
}

// Init prepares v: defaults, .env, environment binding and the config file.
// An explicit cfgFile must exist; otherwise config.yaml is searched for in
// ~/.config/statement-import and the working directory.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "ANTHROPIC_API_KEY")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "statement-import"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if c.Dedup.SimilarityThreshold < 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be within [0,1], got %v", c.Dedup.SimilarityThreshold)
	}
	if c.Dedup.DateTolerance < 0 {
		return fmt.Errorf("dedup.date_tolerance must not be negative")
	}
	if c.Reconcile.NegligibleThreshold < 0 || c.Reconcile.ValidityTolerance < 0 || c.Reconcile.Epsilon < 0 {
		return fmt.Errorf("reconcile thresholds must not be negative")
	}
	return nil
}

// DedupSettings converts to the detector's configuration.
func (c *Config) DedupSettings() dedup.Config {
	return dedup.Config{
		DateTolerance:       c.Dedup.DateTolerance,
		SimilarityThreshold: c.Dedup.SimilarityThreshold,
	}
}

// ReconcileSettings converts to the engine's configuration.
func (c *Config) ReconcileSettings() reconcile.Config {
	return reconcile.Config{
		Epsilon:                decimal.NewFromFloat(c.Reconcile.Epsilon),
		NegligibleThreshold:    decimal.NewFromFloat(c.Reconcile.NegligibleThreshold),
		ValidityTolerance:      decimal.NewFromFloat(c.Reconcile.ValidityTolerance),
		MaxContextTransactions: c.Reconcile.MaxContextTransactions,
		MaxSuggestions:         c.Reconcile.MaxSuggestions,
	}
}

// RenderSettings converts to PDF rasterization options.
func (c *Config) RenderSettings() extractor.RenderOptions {
	return extractor.RenderOptions{DPI: c.OCR.DPI, MaxPages: c.OCR.MaxPages}
}
