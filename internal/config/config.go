package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Export    ExportConfig    `mapstructure:"export"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// MatchingConfig tunes the keyword matching stage. MinScore is the minimum
// token-overlap score required to accept a keyword match; ScoreGap is how far
// ahead of the runner-up the best candidate must be before it is considered
// unambiguous.
type MatchingConfig struct {
	MinScore    int `mapstructure:"min_score"`
	ScoreGap    int `mapstructure:"score_gap"`
	MaxKeywords int `mapstructure:"max_keywords"`
}

// NormalizeConfig tunes line item validation
type NormalizeConfig struct {
	// TotalTolerance is the accepted absolute difference between the declared
	// invoice total and the sum of line totals before a warning is raised.
	TotalTolerance float64 `mapstructure:"total_tolerance"`
}

// ExportConfig holds reconciliation report output configuration
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// SweepConfig holds the pending invoice sweep schedule
type SweepConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Schedule    string `mapstructure:"schedule"`
	AutoMatch   bool   `mapstructure:"auto_match"`
	CreateStock bool   `mapstructure:"create_stock"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("database.path", "data/invoices.db")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "console")

	viper.SetDefault("matching.min_score", 2)
	viper.SetDefault("matching.score_gap", 1)
	viper.SetDefault("matching.max_keywords", 5)

	viper.SetDefault("normalize.total_tolerance", 0.05)

	viper.SetDefault("export.output_dir", "reports")

	viper.SetDefault("sweep.enabled", false)
	viper.SetDefault("sweep.schedule", "*/10 * * * *")
	viper.SetDefault("sweep.auto_match", true)
	viper.SetDefault("sweep.create_stock", false)
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Matching.MinScore < 1 {
		return fmt.Errorf("matching.min_score must be at least 1")
	}
	if c.Matching.ScoreGap < 1 {
		return fmt.Errorf("matching.score_gap must be at least 1")
	}
	if c.Normalize.TotalTolerance < 0 {
		return fmt.Errorf("normalize.total_tolerance must not be negative")
	}
	return nil
}
