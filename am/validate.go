package am

import (
	"regexp"
	"strings"

	"github.com/teranos/attrmigrate/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path cannot be empty")
	}

	// Server port: 0 and out-of-range values are invalid
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	// Trigger rate: 0 = unlimited, negative = invalid
	if c.Server.TriggerRatePerMinute < 0 {
		return errors.Newf("server.trigger_rate_per_minute must be >= 0, got %d", c.Server.TriggerRatePerMinute)
	}

	// Pulse ticker interval: 0 is replaced by Sanitize, negative = invalid
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.Newf("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}

	if c.Pulse.LeaseTTLSeconds <= 0 {
		return errors.Newf("pulse.lease_ttl_seconds must be > 0, got %d", c.Pulse.LeaseTTLSeconds)
	}

	// Retention: 0 = keep everything, negative = invalid
	if c.Pulse.ExecutionRetentionDays < 0 {
		return errors.Newf("pulse.execution_retention_days must be >= 0, got %d", c.Pulse.ExecutionRetentionDays)
	}

	return nil
}

// Sanitize cleans recoverable values in place. Each returned warning is marked
// ErrConfiguration; none of them stop a pass.
func (c *Config) Sanitize() []error {
	var warnings []error

	c.Conversion.Attributes = SanitizeAttributeList(c.Conversion.Attributes)
	if len(c.Conversion.Attributes) == 0 {
		warnings = append(warnings, errors.WithHint(
			errors.Mark(errors.New("conversion.attributes is empty, passes will do nothing"), errors.ErrConfiguration),
			"set attribute names with: attrmigrate am set-attributes Color Size"))
	}

	if c.Conversion.IntervalSeconds <= 0 {
		warnings = append(warnings, errors.Mark(
			errors.Newf("conversion.interval_seconds must be > 0, got %d, using %d",
				c.Conversion.IntervalSeconds, DefaultIntervalSeconds),
			errors.ErrConfiguration))
		c.Conversion.IntervalSeconds = DefaultIntervalSeconds
	}

	if strings.TrimSpace(c.Conversion.ItemType) == "" {
		c.Conversion.ItemType = DefaultItemType
	}

	if c.Pulse.TickerIntervalSeconds == 0 {
		c.Pulse.TickerIntervalSeconds = DefaultTickerSeconds
	}

	return warnings
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeAttributeName strips markup, collapses whitespace and trims the name
func SanitizeAttributeName(name string) string {
	name = tagPattern.ReplaceAllString(name, "")
	name = whitespacePattern.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// SanitizeAttributeList cleans every name, drops empty ones and removes
// case-insensitive duplicates keeping the first spelling.
func SanitizeAttributeList(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		clean := SanitizeAttributeName(name)
		if clean == "" {
			continue
		}
		key := strings.ToLower(clean)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, clean)
	}
	return out
}

// ParseAttributeList splits newline-separated input, one attribute name per line
func ParseAttributeList(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return SanitizeAttributeList(strings.Split(text, "\n"))
}
