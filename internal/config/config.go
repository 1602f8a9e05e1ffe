// Package config defines the tool's configuration surface: target database,
// migration sources, history ledger, backups, and logging. Configuration is
// read from a YAML file, environment variables, and CLI flags, merged by the
// command layer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mysql-migrate/internal/backup"
	"mysql-migrate/internal/database"
	"mysql-migrate/internal/logging"
)

// Config is the complete tool configuration
type Config struct {
	Target     database.Config `mapstructure:"target" yaml:"target"`
	LedgerPath string          `mapstructure:"ledger_path" yaml:"ledger_path"`
	// MigrationsDir holds the YAML migration set definitions
	MigrationsDir string        `mapstructure:"migrations_dir" yaml:"migrations_dir"`
	Backup        BackupConfig  `mapstructure:"backup" yaml:"backup"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Operation settings
	DryRun  bool          `mapstructure:"dry_run" yaml:"dry_run"`
	Verbose bool          `mapstructure:"verbose" yaml:"verbose"`
	Quiet   bool          `mapstructure:"quiet" yaml:"quiet"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// BackupConfig selects the backup pipeline settings
type BackupConfig struct {
	Storage        backup.StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Compression    backup.CompressionType   `mapstructure:"compression" yaml:"compression"`
	Encryption     *backup.EncryptionConfig `mapstructure:"encryption" yaml:"encryption,omitempty"`
	RetentionDays  int                      `mapstructure:"retention_days" yaml:"retention_days"`
	RestoreTimeout time.Duration            `mapstructure:"restore_timeout" yaml:"restore_timeout"`
	// DumpQueries define what a snapshot captures
	DumpQueries []backup.DumpQuery `mapstructure:"dump_queries" yaml:"dump_queries"`
	// StatementQuery yields the restore statements, one per row
	StatementQuery string `mapstructure:"statement_query" yaml:"statement_query"`
}

// LoggingConfig selects logger behavior
type LoggingConfig struct {
	Level   logging.LogLevel `mapstructure:"level" yaml:"level"`
	Format  string           `mapstructure:"format" yaml:"format"`
	LogFile string           `mapstructure:"log_file" yaml:"log_file"`
}

// SetDefaults fills unset fields with sensible defaults
func (c *Config) SetDefaults() {
	c.Target.SetDefaults()

	if c.LedgerPath == "" {
		c.LedgerPath = "migration-history.json"
	}
	if c.MigrationsDir == "" {
		c.MigrationsDir = "migrations"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.Backup.Storage.Provider == "" {
		c.Backup.Storage.Provider = backup.StorageProviderLocal
	}
	if c.Backup.Storage.Provider == backup.StorageProviderLocal && c.Backup.Storage.Local == nil {
		c.Backup.Storage.Local = &backup.LocalConfig{BasePath: "backups"}
	}
	if c.Backup.Compression == "" {
		c.Backup.Compression = backup.CompressionTypeGzip
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = backup.DefaultRetentionDays
	}

	if c.Logging.Level == "" {
		c.Logging.Level = logging.LogLevelNormal
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if err := c.Target.Validate(); err != nil {
		return fmt.Errorf("target database: %w", err)
	}
	if c.Verbose && c.Quiet {
		return fmt.Errorf("verbose and quiet are mutually exclusive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if err := c.Backup.Storage.Validate(); err != nil {
		return fmt.Errorf("backup storage: %w", err)
	}
	if c.Backup.Encryption != nil {
		if err := c.Backup.Encryption.Validate(); err != nil {
			return fmt.Errorf("backup encryption: %w", err)
		}
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("backup retention_days cannot be negative")
	}
	return nil
}

// EffectiveLogLevel resolves the log level from the quiet/verbose shortcuts
func (c *Config) EffectiveLogLevel() logging.LogLevel {
	switch {
	case c.Quiet:
		return logging.LogLevelQuiet
	case c.Verbose:
		return logging.LogLevelVerbose
	default:
		return c.Logging.Level
	}
}

// LoadFile reads a YAML configuration file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// WriteSample writes a complete sample configuration to path
func WriteSample(path string) error {
	return os.WriteFile(path, []byte(SampleYAML), 0600)
}

// SampleYAML is a complete configuration template
const SampleYAML = `# mysql-migrate configuration

# Target database connection
target:
  host: localhost
  port: 3306
  username: root
  password: ""            # prefer MYSQL_MIGRATE_TARGET_PASSWORD
  database: app_db
  timeout: 30s

# Durable execution history (JSON, atomically rewritten)
ledger_path: migration-history.json

# Directory of YAML migration set definitions
migrations_dir: migrations

timeout: 30s

backup:
  storage:
    provider: local       # local, s3, azure, gcs
    local:
      base_path: backups
  compression: gzip       # none, gzip, lz4, zstd
  retention_days: 30
  restore_timeout: 10m
  # encryption:
  #   enabled: true
  #   key_source: passphrase   # file, env, or passphrase
  dump_queries:
    - name: tables
      query: "SHOW TABLES"
      schema_only: true
  statement_query: ""     # rows of executable statements for restore

logging:
  level: normal           # quiet, normal, verbose, debug
  format: text            # text or json
  log_file: ""
`
