// Package config loads configuration for the rule aggregator.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/kelomina/ADGHRuleTool/pkg/serrors"
	"github.com/kelomina/ADGHRuleTool/pkg/version"
)

const (
	// ConfigEnvVar names the config file when --config is not given.
	ConfigEnvVar = "ADGHRULETOOL_CONFIG"
	envPrefix    = "ADGHRULETOOL"

	// ExclusionMarker prefixes output lines that CleanupPass removes.
	ExclusionMarker = "**"
)

// Config contains all runtime options of the aggregator.
type Config struct {
	Sources  SourcesConfig  `mapstructure:"sources"`
	Output   OutputConfig   `mapstructure:"output"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// SourcesConfig points at the source list file.
type SourcesConfig struct {
	File string `mapstructure:"file"`
}

// OutputConfig holds output and scratch artifact settings.
type OutputConfig struct {
	Path                string `mapstructure:"path"`
	ScratchDir          string `mapstructure:"scratch_dir"`
	DedupeAcrossSources bool   `mapstructure:"dedupe_across_sources"`
	Sorted              bool   `mapstructure:"sorted"`
}

// FetchConfig holds HTTP retrieval settings.
type FetchConfig struct {
	Proxy         string        `mapstructure:"proxy"`
	Attempts      int           `mapstructure:"attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	MaxBytes      int64         `mapstructure:"max_bytes"`
}

// ScheduleConfig holds cycle timing settings.
type ScheduleConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	WaitForEnter bool          `mapstructure:"wait_for_enter"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// AdminConfig holds the optional status/metrics listener.
type AdminConfig struct {
	Listen string `mapstructure:"listen"`
}

// ValidateLogLevel ensures the user-provided log level matches the supported set.
func ValidateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
	}
	return nil
}

// ValidateAddress confirms that an address string has a valid host IP and TCP port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if port == "" {
		return errors.New("invalid port")
	}
	if err != nil {
		return fmt.Errorf("invalid address format %s: %w", addr, err)
	}
	if ip := net.ParseIP(host); ip == nil {
		return fmt.Errorf("invalid IP address: %s", host)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return fmt.Errorf("invalid port: %s", port)
	}
	return nil
}

// ValidateProxy checks a forward proxy URL. An empty value is accepted and
// means the environment proxy settings apply.
func ValidateProxy(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy url %s: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy url %s has no host", raw)
	}
	return nil
}

// Load reads the TOML file at path (or the file named by ConfigEnvVar when
// path is empty), applies environment overrides and validates the result.
// With neither set, defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigEnvVar))
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, serrors.Wrap(serrors.ErrConfigLoad, err, "read config")
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, serrors.Wrap(serrors.ErrConfigLoad, err, "parse config")
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sources.file", "rule.txt")
	v.SetDefault("output.path", "output_rules.txt")
	v.SetDefault("output.scratch_dir", ".")
	v.SetDefault("output.dedupe_across_sources", false)
	v.SetDefault("output.sorted", true)
	v.SetDefault("fetch.proxy", "")
	v.SetDefault("fetch.attempts", 5)
	v.SetDefault("fetch.retry_interval", "3s")
	v.SetDefault("fetch.timeout", "60s")
	v.SetDefault("fetch.user_agent", version.UserAgent())
	v.SetDefault("fetch.max_bytes", int64(256<<20))
	v.SetDefault("schedule.interval", "6h")
	v.SetDefault("schedule.wait_for_enter", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "stdout")
	v.SetDefault("admin.listen", "")
}

func validateConfig(cfg *Config) error {
	if err := ValidateLogLevel(cfg.Logging.Level); err != nil {
		return serrors.Wrap(serrors.ErrConfigLoad, err, "invalid logging.level")
	}

	if strings.TrimSpace(cfg.Sources.File) == "" {
		return serrors.With(serrors.ErrConfigLoad, "sources.file is required")
	}
	if strings.TrimSpace(cfg.Output.Path) == "" {
		return serrors.With(serrors.ErrConfigLoad, "output.path is required")
	}
	if cfg.Output.ScratchDir == "" {
		cfg.Output.ScratchDir = "."
	}

	if cfg.Fetch.Attempts < 1 {
		return serrors.With(serrors.ErrConfigLoad, "fetch.attempts must be >= 1")
	}
	if cfg.Fetch.RetryInterval <= 0 {
		return serrors.With(serrors.ErrConfigLoad, "fetch.retry_interval must be > 0")
	}
	if cfg.Fetch.Timeout <= 0 {
		return serrors.With(serrors.ErrConfigLoad, "fetch.timeout must be > 0")
	}
	if cfg.Fetch.MaxBytes <= 0 {
		return serrors.With(serrors.ErrConfigLoad, "fetch.max_bytes must be > 0")
	}
	if err := ValidateProxy(cfg.Fetch.Proxy); err != nil {
		return serrors.Wrap(serrors.ErrConfigLoad, err, "invalid fetch.proxy")
	}

	if cfg.Schedule.Interval <= 0 {
		return serrors.With(serrors.ErrConfigLoad, "schedule.interval must be > 0")
	}

	if cfg.Admin.Listen != "" {
		if err := ValidateAddress(cfg.Admin.Listen); err != nil {
			return serrors.Wrap(serrors.ErrConfigLoad, err, "invalid admin.listen")
		}
	}

	return nil
}
