package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Portal      PortalConfig      `mapstructure:"portal"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Output      OutputConfig      `mapstructure:"output"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Watch       WatchConfig       `mapstructure:"watch"`
}

// PortalConfig defines how the self-care portal is reached
type PortalConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Timeout     string `mapstructure:"timeout"`
	UserAgent   string `mapstructure:"user_agent"`
	MaxParallel int    `mapstructure:"max_parallel"`
}

// CredentialsConfig carries the portal login. Typically supplied through the
// FAMLINE_CREDENTIALS_USERNAME / FAMLINE_CREDENTIALS_PASSWORD environment
// variables rather than the config file; the password must never be logged.
type CredentialsConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// OutputConfig defines report rendering
type OutputConfig struct {
	Format string `mapstructure:"format"` // "human" or "machine"
	Color  bool   `mapstructure:"color"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WatchConfig defines the scheduled polling mode
type WatchConfig struct {
	Interval    string `mapstructure:"interval"`
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
	CacheTTL    string `mapstructure:"cache_ttl"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("FAMLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Portal defaults
	v.SetDefault("portal.base_url", "https://moje.o2family.cz")
	v.SetDefault("portal.timeout", "30s")
	v.SetDefault("portal.user_agent", "famline/1.0")
	v.SetDefault("portal.max_parallel", 3)

	// Credential defaults exist so the keys are visible to AutomaticEnv;
	// the values come from the config file or FAMLINE_CREDENTIALS_*.
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")

	// Output defaults
	v.SetDefault("output.format", "human")
	v.SetDefault("output.color", true)

	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	// Watch defaults
	v.SetDefault("watch.interval", "15m")
	v.SetDefault("watch.metrics_port", 9877)
	v.SetDefault("watch.bind_address", "0.0.0.0")
	v.SetDefault("watch.cache_ttl", "5m")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Portal.BaseURL == "" {
		return fmt.Errorf("portal base URL is required")
	}
	if !strings.HasPrefix(cfg.Portal.BaseURL, "http://") && !strings.HasPrefix(cfg.Portal.BaseURL, "https://") {
		return fmt.Errorf("portal base URL must be http(s): %s", cfg.Portal.BaseURL)
	}
	cfg.Portal.BaseURL = strings.TrimRight(cfg.Portal.BaseURL, "/")

	if _, err := time.ParseDuration(cfg.Portal.Timeout); err != nil {
		return fmt.Errorf("invalid portal timeout: %w", err)
	}
	if cfg.Portal.MaxParallel < 1 {
		return fmt.Errorf("portal max_parallel must be at least 1")
	}

	if cfg.Output.Format != "human" && cfg.Output.Format != "machine" {
		return fmt.Errorf("invalid output format: %s", cfg.Output.Format)
	}

	if _, err := time.ParseDuration(cfg.Watch.Interval); err != nil {
		return fmt.Errorf("invalid watch interval: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Watch.CacheTTL); err != nil {
		return fmt.Errorf("invalid watch cache_ttl: %w", err)
	}
	if cfg.Watch.MetricsPort <= 0 || cfg.Watch.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Watch.MetricsPort)
	}

	return nil
}

// PortalTimeout returns the portal timeout as a duration.
func (c *Config) PortalTimeout() time.Duration {
	return parseDuration(c.Portal.Timeout, 30*time.Second)
}

// WatchInterval returns the polling interval as a duration.
func (c *Config) WatchInterval() time.Duration {
	return parseDuration(c.Watch.Interval, 15*time.Minute)
}

// WatchCacheTTL returns the payload cache TTL as a duration.
func (c *Config) WatchCacheTTL() time.Duration {
	return parseDuration(c.Watch.CacheTTL, 5*time.Minute)
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
