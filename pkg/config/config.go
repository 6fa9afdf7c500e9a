package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for poiforge.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (PGPASSWORD) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL with PostGIS)
	Database DatabaseConfig `yaml:"database"`

	// Pipeline configuration
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5433"`
	User           string `yaml:"user" env:"PGUSER" env-default:"poiforge"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"layereddb"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// PipelineConfig holds the reconciliation pipeline settings.
type PipelineConfig struct {
	// SourceSchema is the schema holding the candidate source tables.
	SourceSchema string `yaml:"source_schema" env:"SOURCE_SCHEMA" env-default:"berlin_source_data"`

	// TargetTable is the unified output relation (public schema).
	TargetTable string `yaml:"target_table" env:"TARGET_TABLE" env-default:"unified_pois"`

	// ProcessedLog and ExcludedLog are the run ledgers.
	ProcessedLog string `yaml:"processed_log" env:"PROCESSED_LOG" env-default:"processed_tables_log"`
	ExcludedLog  string `yaml:"excluded_log" env:"EXCLUDED_LOG" env-default:"excluded_tables_log"`

	// CanonicalSRID is the single spatial reference every geometry is
	// normalized to.
	CanonicalSRID int `yaml:"canonical_srid" env:"CANONICAL_SRID" env-default:"4326"`

	// PrefixLength is how many leading characters of a table name form the
	// poi_id prefix.
	PrefixLength int `yaml:"prefix_length" env:"PREFIX_LENGTH" env-default:"4"`

	// DesignatedLayer is the one layer that receives nearest-neighbor
	// enrichment.
	DesignatedLayer string `yaml:"designated_layer" env:"DESIGNATED_LAYER" env-default:"long_term_listings"`

	// TieTolerance is the distance delta under which two candidates count as
	// equidistant; ties resolve to the lexicographically smaller poi_id.
	TieTolerance float64 `yaml:"tie_tolerance" env:"TIE_TOLERANCE" env-default:"1e-9"`

	// ReferenceTablesStr is a comma-separated list of name fragments marking
	// reference relations that are never candidates (districts lookup etc.).
	ReferenceTablesStr string `yaml:"reference_tables" env:"REFERENCE_TABLES" env-default:"districts,neighborhoods"`

	// ReferenceTables is the parsed list from ReferenceTablesStr.
	ReferenceTables []string `yaml:"-"`

	// TablesStr optionally restricts the run to a comma-separated include
	// list of table names. Empty means every candidate table.
	TablesStr string `yaml:"tables" env:"TABLES" env-default:""`

	// Tables is the parsed list from TablesStr.
	Tables []string `yaml:"-"`

	// MaxParallel bounds the number of source tables validated and
	// normalized concurrently. Writes stay serialized per table.
	MaxParallel int `yaml:"max_parallel" env:"MAX_PARALLEL" env-default:"4"`
}

// Load reads configuration from config.yaml with environment variable
// overrides, falling back to environment-only when no file exists. The
// version parameter is injected at build time and set on the returned Config.
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
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Pipeline.ReferenceTables = parseList(cfg.Pipeline.ReferenceTablesStr)
	cfg.Pipeline.Tables = parseList(cfg.Pipeline.TablesStr)

	if err := cfg.Pipeline.validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	return cfg, nil
}

func (p *PipelineConfig) validate() error {
	if p.SourceSchema == "" {
		return fmt.Errorf("source_schema must not be empty")
	}
	if p.PrefixLength < 1 {
		return fmt.Errorf("prefix_length must be at least 1, got %d", p.PrefixLength)
	}
	if p.CanonicalSRID <= 0 {
		return fmt.Errorf("canonical_srid must be positive, got %d", p.CanonicalSRID)
	}
	if p.TieTolerance < 0 {
		return fmt.Errorf("tie_tolerance must not be negative, got %g", p.TieTolerance)
	}
	if p.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1, got %d", p.MaxParallel)
	}
	return nil
}

// parseList splits a comma-separated option into trimmed non-empty entries.
func parseList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
