package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for dqengine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Import pipeline limits
	Import ImportConfig `yaml:"import"`

	// Validation engine tuning
	Validation ValidationConfig `yaml:"validation"`

	// MigrationsPath is the directory containing registry store migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// DictionaryPath is the word list consumed by the spell_check rule.
	DictionaryPath string `yaml:"dictionary_path" env:"DICTIONARY_PATH" env-default:"custom_dictionary.txt"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"dqengine"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"dqengine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ImportConfig holds limits for the spreadsheet import pipeline.
type ImportConfig struct {
	// MaxFileSizeBytes rejects uploads above this size.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" env:"IMPORT_MAX_FILE_SIZE_BYTES" env-default:"104857600"`
	// MaxRows rejects workbooks whose combined sheet rows exceed this count.
	MaxRows int `yaml:"max_rows" env:"IMPORT_MAX_ROWS" env-default:"1000000"`
	// ArchiveDir is where original workbook bytes are retained after import.
	ArchiveDir string `yaml:"archive_dir" env:"IMPORT_ARCHIVE_DIR" env-default:"archive"`
}

// ValidationConfig tunes the validation orchestrator.
type ValidationConfig struct {
	// BatchSize bounds how many rows are streamed per read for row-mode rules.
	BatchSize int `yaml:"batch_size" env:"VALIDATION_BATCH_SIZE" env-default:"500"`
	// NominalWorkload substitutes a zero workload so progress stays meaningful.
	NominalWorkload int `yaml:"nominal_workload" env:"VALIDATION_NOMINAL_WORKLOAD" env-default:"100"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// If config.yaml is absent, configuration comes from environment variables alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Import.MaxRows <= 0 {
		return fmt.Errorf("import.max_rows must be positive, got %d", c.Import.MaxRows)
	}
	if c.Validation.BatchSize <= 0 {
		return fmt.Errorf("validation.batch_size must be positive, got %d", c.Validation.BatchSize)
	}
	if c.Validation.NominalWorkload <= 0 {
		return fmt.Errorf("validation.nominal_workload must be positive, got %d", c.Validation.NominalWorkload)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
