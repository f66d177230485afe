package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/ws-balancer/internal/backend"
	"github.com/angeloszaimis/ws-balancer/internal/httpserver"
	"github.com/angeloszaimis/ws-balancer/internal/strategy"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
	// TrustedProxies lists the IPs or CIDR ranges whose X-Forwarded-For
	// header is believed. Requests from anyone else are keyed by their
	// TCP peer address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// HealthCheckConfig holds Go duration strings such as "30s" or "30000ms".
type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Timeout  string `mapstructure:"timeout"`
}

type StrategyConfig struct {
	Type string `mapstructure:"type"`
}

type BackendConfig struct {
	ID     string `mapstructure:"id"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Weight int    `mapstructure:"weight"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

type MonitoringConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Strategy    StrategyConfig    `mapstructure:"strategy"`
	Backends    []BackendConfig   `mapstructure:"backends"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`

	// MaxRetries is validated and exposed but no component retries yet.
	MaxRetries int `mapstructure:"max_retries"`
}

// Load reads config.yaml from ./config or the working directory, applies
// environment overrides and defaults, then normalizes and validates it.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("health_check.interval", "30s")
	v.SetDefault("health_check.timeout", "5s")
	v.SetDefault("strategy.type", strategy.RoundRobin)
	v.SetDefault("max_retries", 3)
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.address", ":9090")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)
}

// Normalize assigns "backend-N" ids to backends without one, N being the
// zero-based position, and a weight of 1 where none is set.
func (c *Config) Normalize() {
	for i := range c.Backends {
		if c.Backends[i].ID == "" {
			c.Backends[i].ID = fmt.Sprintf("backend-%d", i)
		}
		if c.Backends[i].Weight == 0 {
			c.Backends[i].Weight = 1
		}
	}
}

// Seeds converts the backend entries into registry seeds, in order.
func (c *Config) Seeds() []backend.Seed {
	seeds := make([]backend.Seed, 0, len(c.Backends))
	for _, b := range c.Backends {
		seeds = append(seeds, backend.Seed{
			ID:     b.ID,
			Host:   b.Host,
			Port:   b.Port,
			Weight: b.Weight,
		})
	}
	return seeds
}

// TrustedProxyPrefixes parses TrustedProxies. A bare IP becomes a
// single-address prefix. Call after Validate.
func (s ServerConfig) TrustedProxyPrefixes() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		if p, err := parseProxy(entry); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

func parseProxy(value string) (netip.Prefix, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "/") {
		p, err := netip.ParsePrefix(value)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func validateProxy(value interface{}) error {
	entry, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if _, err := parseProxy(entry); err != nil {
		return validation.NewError("validation_invalid_proxy", "must be an IP address or CIDR range")
	}
	return nil
}

// IntervalDuration returns the parsed probe interval. Call after Validate.
func (h HealthCheckConfig) IntervalDuration() time.Duration {
	d, _ := parseDuration(h.Interval)
	return d
}

// TimeoutDuration returns the parsed probe timeout. Call after Validate.
func (h HealthCheckConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration(h.Timeout)
	return d
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(httpserver.ValidateAddress),
					),
					validation.Field(&sc.TrustedProxies,
						validation.Each(validation.Required, validation.By(validateProxy)),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
						validation.By(func(interface{}) error {
							if hc.TimeoutDuration() > hc.IntervalDuration() {
								return validation.NewError("validation_timeout_exceeds_interval", "must not exceed the interval")
							}
							return nil
						}),
					),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
			validation.By(validateUniqueIDs),
		),
		validation.Field(&c.Strategy,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StrategyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StrategyConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Type,
						validation.Required,
						validation.In(algorithms()...),
					),
				)
			}),
		),
		validation.Field(&c.MaxRetries,
			validation.Min(0),
		),
		validation.Field(&c.Monitoring,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MonitoringConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MonitoringConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Address,
						validation.When(mc.Enabled,
							validation.Required,
							validation.By(httpserver.ValidateAddress),
						),
					),
				)
			}),
		),
		validation.Field(&c.RateLimit,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RateLimitConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RateLimitConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.RPS,
						validation.When(rc.Enabled, validation.Required, validation.Min(0.0)),
					),
					validation.Field(&rc.Burst,
						validation.When(rc.Enabled, validation.Required, validation.Min(1)),
					),
				)
			}),
		),
	)
}

func algorithms() []interface{} {
	names := strategy.Algorithms()
	out := make([]interface{}, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}

// parseDuration accepts Go duration strings and bare integers, which are
// read as milliseconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(value)
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := parseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 5s, 30000ms, 30000, 1m)")
	}

	if d <= 0 {
		return validation.NewError("validation_non_positive_duration", "must be positive")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	b, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	return validation.ValidateStruct(&b,
		validation.Field(&b.ID, validation.Required),
		validation.Field(&b.Host, validation.Required, is.Host),
		validation.Field(&b.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&b.Weight, validation.Min(1)),
	)
}

func validateUniqueIDs(value interface{}) error {
	backends, ok := value.([]BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of BackendConfig")
	}

	seen := make(map[string]bool, len(backends))
	for _, b := range backends {
		if seen[b.ID] {
			return validation.NewError("validation_duplicate_id", fmt.Sprintf("duplicate backend id %q", b.ID))
		}
		seen[b.ID] = true
	}

	return nil
}
