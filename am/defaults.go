package am

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)

	// Conversion defaults: nothing is migrated until attributes are configured
	v.SetDefault("conversion.attributes", []string{})
	v.SetDefault("conversion.interval_seconds", DefaultIntervalSeconds)
	v.SetDefault("conversion.item_type", DefaultItemType)

	// Pulse defaults
	v.SetDefault("pulse.ticker_interval_seconds", DefaultTickerSeconds)
	v.SetDefault("pulse.lease_ttl_seconds", DefaultLeaseTTLSeconds)
	v.SetDefault("pulse.execution_retention_days", DefaultRetentionDays)

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.trigger_rate_per_minute", DefaultTriggerRatePerMinute)
}

// BindSensitiveEnvVars explicitly binds configuration that deployments set by environment
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "ATTRMIGRATE_DATABASE_PATH", "DB_PATH")
}
