// Package am loads, validates and persists attrmigrate configuration.
package am

// Config represents the attrmigrate configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" json:"database" yaml:"database" toml:"database"`
	Conversion ConversionConfig `mapstructure:"conversion" json:"conversion" yaml:"conversion" toml:"conversion"`
	Pulse      PulseConfig      `mapstructure:"pulse" json:"pulse" yaml:"pulse" toml:"pulse"`
	Server     ServerConfig     `mapstructure:"server" json:"server" yaml:"server" toml:"server"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
}

// ConversionConfig selects what a conversion pass migrates and how often
type ConversionConfig struct {
	// Attribute names to migrate, in order (e.g. ["Color", "Size"])
	Attributes []string `mapstructure:"attributes" json:"attributes" yaml:"attributes" toml:"attributes"`
	// Seconds between scheduled passes (default: 3600)
	IntervalSeconds int `mapstructure:"interval_seconds" json:"interval_seconds" yaml:"interval_seconds" toml:"interval_seconds"`
	// Item type new taxonomies are registered for (default: "product")
	ItemType string `mapstructure:"item_type" json:"item_type" yaml:"item_type" toml:"item_type"`
}

// PulseConfig configures the scheduler
type PulseConfig struct {
	// How often to check whether the conversion job is due (default: 1)
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds" json:"ticker_interval_seconds" yaml:"ticker_interval_seconds" toml:"ticker_interval_seconds"`
	// How long a crashed pass blocks others (default: 3600)
	LeaseTTLSeconds int `mapstructure:"lease_ttl_seconds" json:"lease_ttl_seconds" yaml:"lease_ttl_seconds" toml:"lease_ttl_seconds"`
	// Days of execution history kept; 0 keeps everything (default: 90)
	ExecutionRetentionDays int `mapstructure:"execution_retention_days" json:"execution_retention_days" yaml:"execution_retention_days" toml:"execution_retention_days"`
}

// ServerConfig configures the HTTP admin surface
type ServerConfig struct {
	Port int `mapstructure:"port" json:"port" yaml:"port" toml:"port"`
	// Manual trigger requests allowed per minute; 0 = unlimited (default: 6)
	TriggerRatePerMinute int `mapstructure:"trigger_rate_per_minute" json:"trigger_rate_per_minute" yaml:"trigger_rate_per_minute" toml:"trigger_rate_per_minute"`
}

// Defaults
const (
	DefaultDatabasePath         = "attrmigrate.db"
	DefaultIntervalSeconds      = 3600
	DefaultItemType             = "product"
	DefaultTickerSeconds        = 1
	DefaultLeaseTTLSeconds      = 3600
	DefaultRetentionDays        = 90
	DefaultServerPort           = 8787
	DefaultTriggerRatePerMinute = 6

	DefaultDirPermissions = 0750
)
