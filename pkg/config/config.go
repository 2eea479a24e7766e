package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the config file read by Load.
const DefaultPath = "config.yaml"

// Config holds all configuration for the composites service.
// Values come from config.yaml with environment variable overrides.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`

	// MigrationsPath is the directory holding the SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	Database   DatabaseConfig   `yaml:"database"`
	Composites CompositesConfig `yaml:"composites"`
	Extraction ExtractionConfig `yaml:"extraction"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_composites"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// CompositesConfig holds the tunables of aggregation, comparison and review.
type CompositesConfig struct {
	// ThresholdPercent is the change score at which a recomputed composite is significant.
	ThresholdPercent float64 `yaml:"threshold_percent" env:"COMPOSITE_THRESHOLD_PERCENT" env-default:"5.0"`
	// ReviewPeriodDays is how long an approved composite stays current before it is reviewed.
	ReviewPeriodDays int `yaml:"review_period_days" env:"REVIEW_PERIOD_DAYS" env-default:"90"`
	// ImpurityThresholdPercent classifies extracted readings below it as impurities.
	ImpurityThresholdPercent float64 `yaml:"impurity_threshold_percent" env:"IMPURITY_THRESHOLD_PERCENT" env-default:"1.0"`
	// DraftRetentionDays is how long an untouched draft survives the cleanup job.
	DraftRetentionDays int `yaml:"draft_retention_days" env:"DRAFT_RETENTION_DAYS" env-default:"30"`

	ReviewIntervalHours    int  `yaml:"review_interval_hours" env:"REVIEW_INTERVAL_HOURS" env-default:"24"`
	ReviewConcurrency      int  `yaml:"review_concurrency" env:"REVIEW_CONCURRENCY" env-default:"4"`
	ReviewSchedulerEnabled bool `yaml:"review_scheduler_enabled" env:"REVIEW_SCHEDULER_ENABLED" env-default:"true"`
	// AutoSubmitReviews submits drafts produced by the periodic review for approval.
	AutoSubmitReviews bool `yaml:"auto_submit_reviews" env:"AUTO_SUBMIT_REVIEWS" env-default:"false"`
}

// ReviewInterval returns the scheduler period.
func (c CompositesConfig) ReviewInterval() time.Duration {
	return time.Duration(c.ReviewIntervalHours) * time.Hour
}

// ReviewPeriod returns how old an approval must be before it is reviewed.
func (c CompositesConfig) ReviewPeriod() time.Duration {
	return time.Duration(c.ReviewPeriodDays) * 24 * time.Hour
}

// ExtractionConfig controls analysis file uploads.
type ExtractionConfig struct {
	// SynonymsFile optionally extends the header synonym tables (YAML).
	SynonymsFile   string `yaml:"synonyms_file" env:"EXTRACTION_SYNONYMS_FILE" env-default:""`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760"`
}

// Load reads config.yaml from the working directory with environment overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultPath, version)
}

// LoadFile reads the config file at path with environment overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	comp := c.Composites
	if comp.ThresholdPercent <= 0 {
		errs = append(errs, fmt.Errorf("composites.threshold_percent must be positive, got %v", comp.ThresholdPercent))
	}
	if comp.ImpurityThresholdPercent <= 0 {
		errs = append(errs, fmt.Errorf("composites.impurity_threshold_percent must be positive, got %v", comp.ImpurityThresholdPercent))
	}
	if comp.ReviewPeriodDays <= 0 {
		errs = append(errs, fmt.Errorf("composites.review_period_days must be positive, got %d", comp.ReviewPeriodDays))
	}
	if comp.DraftRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("composites.draft_retention_days must be positive, got %d", comp.DraftRetentionDays))
	}
	if comp.ReviewIntervalHours <= 0 {
		errs = append(errs, fmt.Errorf("composites.review_interval_hours must be positive, got %d", comp.ReviewIntervalHours))
	}
	if comp.ReviewConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("composites.review_concurrency must be positive, got %d", comp.ReviewConcurrency))
	}
	if c.Extraction.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("extraction.max_upload_bytes must be positive, got %d", c.Extraction.MaxUploadBytes))
	}
	return errors.Join(errs...)
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the database as a postgres:// URL, as expected by migrate.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
