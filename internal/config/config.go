package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config represents the top-level YAML configuration file.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"    yaml:"database"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Vault       VaultConfig       `mapstructure:"vault"       yaml:"vault"`
	Backup      BackupConfig      `mapstructure:"backup"      yaml:"backup"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"    yaml:"schedule"`
	Health      HealthConfig      `mapstructure:"health"      yaml:"health"`
}

// DatabaseConfig describes how to reach the target database.
type DatabaseConfig struct {
	// Endpoint is the base URL of the database server, e.g. "http://db:8000".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Binary is the database CLI used for export/import.
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Timeout bounds a single export or import invocation.
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
	ProbeAttempts int           `mapstructure:"probe_attempts" yaml:"probe_attempts"`
	ProbeBackoff  time.Duration `mapstructure:"probe_backoff"  yaml:"probe_backoff"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"  yaml:"probe_timeout"`
}

// CredentialsConfig selects and tunes the credential source.
type CredentialsConfig struct {
	// Source is "file" (mounted secret directory) or "vault".
	Source string `mapstructure:"source" yaml:"source"`
	// Path is the secret directory for "file", or the KV path for "vault".
	Path         string        `mapstructure:"path"          yaml:"path"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"  yaml:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address"`
	RoleID      string `mapstructure:"role_id"      yaml:"role_id,omitempty"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
}

// BackupConfig contains artifact and retention options.
type BackupConfig struct {
	// Root is the durable directory holding the two retention slots.
	Root string `mapstructure:"root" yaml:"root"`
	// ScratchDir is where transient artifacts are written. It must live on
	// the same filesystem as Root so the commit rename stays atomic.
	// Defaults to <root>/scratch.
	ScratchDir string `mapstructure:"scratch_dir" yaml:"scratch_dir,omitempty"`
	// MarkerToken is the token a well-formed export must contain.
	MarkerToken string `mapstructure:"marker_token" yaml:"marker_token"`
}

// ScheduleConfig sets the built-in trigger intervals.
type ScheduleConfig struct {
	NightlyInterval time.Duration `mapstructure:"nightly_interval" yaml:"nightly_interval"`
	WeeklyInterval  time.Duration `mapstructure:"weekly_interval"  yaml:"weekly_interval"`
}

// HealthConfig tunes the health endpoint.
type HealthConfig struct {
	Listen             string        `mapstructure:"listen"              yaml:"listen"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold" yaml:"staleness_threshold"`
	// SnapshotPath is the on-disk mirror of the health record.
	// Defaults to <backup root>/health.json.
	SnapshotPath string `mapstructure:"snapshot_path" yaml:"snapshot_path,omitempty"`
}

// Load reads the configuration from the given YAML file using Viper,
// applies defaults, and validates the result.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
	}

	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	c.applyDefaults()
	return c.Validate()
}

func (c *Config) applyDefaults() {
	if c.Database.Binary == "" {
		c.Database.Binary = "surreal"
	}
	if c.Database.Timeout == 0 {
		c.Database.Timeout = 10 * time.Minute
	}
	if c.Database.ProbeAttempts == 0 {
		c.Database.ProbeAttempts = 3
	}
	if c.Database.ProbeBackoff == 0 {
		c.Database.ProbeBackoff = 2 * time.Second
	}
	if c.Database.ProbeTimeout == 0 {
		c.Database.ProbeTimeout = 5 * time.Second
	}
	if c.Credentials.Source == "" {
		c.Credentials.Source = "file"
	}
	if c.Credentials.WaitTimeout == 0 {
		c.Credentials.WaitTimeout = 60 * time.Second
	}
	if c.Credentials.PollInterval == 0 {
		c.Credentials.PollInterval = 2 * time.Second
	}
	if c.Backup.ScratchDir == "" && c.Backup.Root != "" {
		c.Backup.ScratchDir = filepath.Join(c.Backup.Root, "scratch")
	}
	if c.Backup.MarkerToken == "" {
		c.Backup.MarkerToken = "TRANSACTION"
	}
	if c.Schedule.NightlyInterval == 0 {
		c.Schedule.NightlyInterval = 24 * time.Hour
	}
	if c.Schedule.WeeklyInterval == 0 {
		c.Schedule.WeeklyInterval = 7 * 24 * time.Hour
	}
	if c.Health.Listen == "" {
		c.Health.Listen = ":8080"
	}
	if c.Health.StalenessThreshold == 0 {
		c.Health.StalenessThreshold = 24 * time.Hour
	}
	if c.Health.SnapshotPath == "" && c.Backup.Root != "" {
		c.Health.SnapshotPath = filepath.Join(c.Backup.Root, "health.json")
	}
}

// Validate checks the fields no default can stand in for.
func (c *Config) Validate() error {
	if c.Database.Endpoint == "" {
		return fmt.Errorf("%w: database.endpoint is required", ErrValidateConfig)
	}
	if c.Backup.Root == "" {
		return fmt.Errorf("%w: backup.root is required", ErrValidateConfig)
	}
	switch c.Credentials.Source {
	case "file":
		if c.Credentials.Path == "" {
			return fmt.Errorf("%w: credentials.path is required for the file source", ErrValidateConfig)
		}
	case "vault":
		if c.Credentials.Path == "" {
			return fmt.Errorf("%w: credentials.path is required for the vault source", ErrValidateConfig)
		}
		if c.Vault.Address == "" {
			return fmt.Errorf("%w: vault.address is required for the vault source", ErrValidateConfig)
		}
	default:
		return fmt.Errorf("%w: unknown credentials.source %q", ErrValidateConfig, c.Credentials.Source)
	}
	return nil
}
