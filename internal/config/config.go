// Package config loads the keyper server configuration from a YAML file,
// KEYPER_ environment variables and command line flags.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	oauth "github.com/keyper-oauth/keyper"
	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/storage/factory"
	"github.com/keyper-oauth/keyper/storage/redis"
)

// EnvPrefix prefixes every environment variable override, e.g. KEYPER_STORAGE_DRIVER
const EnvPrefix = "KEYPER"

// Config is the complete server configuration
type Config struct {
	Issuer          string          `yaml:"issuer" mapstructure:"issuer"`
	Port            int             `yaml:"port" mapstructure:"port"`
	ClientsFile     string          `yaml:"clients_file" mapstructure:"clients_file"`
	SupportedScopes []string        `yaml:"supported_scopes" mapstructure:"supported_scopes"`
	Tokens          TokensConfig    `yaml:"tokens" mapstructure:"tokens"`
	Security        SecurityConfig  `yaml:"security" mapstructure:"security"`
	Storage         StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Telemetry       TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Log             LogConfig       `yaml:"log" mapstructure:"log"`
}

type TokensConfig struct {
	AuthorizationCodeTTL time.Duration `yaml:"authorization_code_ttl" mapstructure:"authorization_code_ttl"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl" mapstructure:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl" mapstructure:"refresh_token_ttl"`
	IssueRefreshTokens   bool          `yaml:"issue_refresh_tokens" mapstructure:"issue_refresh_tokens"`
}

type SecurityConfig struct {
	TrustProxy           bool          `yaml:"trust_proxy" mapstructure:"trust_proxy"`
	TrustedProxyCount    int           `yaml:"trusted_proxy_count" mapstructure:"trusted_proxy_count"`
	ClockSkewGracePeriod time.Duration `yaml:"clock_skew_grace_period" mapstructure:"clock_skew_grace_period"`
	AuditLogging         bool          `yaml:"audit_logging" mapstructure:"audit_logging"`
}

type StorageConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	SQLite          SQLiteConfig  `yaml:"sqlite" mapstructure:"sqlite"`
	Redis           RedisConfig   `yaml:"redis" mapstructure:"redis"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Username  string `yaml:"username,omitempty" mapstructure:"username"`
	Password  string `yaml:"password,omitempty" mapstructure:"password"`
	DB        int    `yaml:"db,omitempty" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix,omitempty" mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	MetricsAddr       string  `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	TracesExporter    string  `yaml:"traces_exporter" mapstructure:"traces_exporter"`
	OTLPEndpoint      string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	OTLPInsecure      bool    `yaml:"otlp_insecure" mapstructure:"otlp_insecure"`
	TraceSamplingRate float64 `yaml:"trace_sampling_rate" mapstructure:"trace_sampling_rate"`
	LogClientIPs      bool    `yaml:"log_client_ips" mapstructure:"log_client_ips"`
}

type LogConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Debug  bool   `yaml:"debug" mapstructure:"debug"`
}

// SetDefaults registers every key with its default. Environment overrides only
// reach keys viper knows about, so each key needs a default here.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("issuer", "http://localhost:3000")
	v.SetDefault("port", 3000)
	v.SetDefault("clients_file", "")
	v.SetDefault("supported_scopes", []string{})

	v.SetDefault("tokens.authorization_code_ttl", 10*time.Minute)
	v.SetDefault("tokens.access_token_ttl", time.Hour)
	v.SetDefault("tokens.refresh_token_ttl", 90*24*time.Hour)
	v.SetDefault("tokens.issue_refresh_tokens", false)

	v.SetDefault("security.trust_proxy", false)
	v.SetDefault("security.trusted_proxy_count", 1)
	v.SetDefault("security.clock_skew_grace_period", 5*time.Second)
	v.SetDefault("security.audit_logging", true)

	v.SetDefault("storage.driver", factory.DriverMemory)
	v.SetDefault("storage.cleanup_interval", time.Minute)
	v.SetDefault("storage.sqlite.path", "keyper.db")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.username", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "keyper:")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.metrics_addr", "")
	v.SetDefault("telemetry.traces_exporter", instrumentation.TracesExporterNone)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.trace_sampling_rate", 1.0)
	v.SetDefault("telemetry.log_client_ips", false)

	v.SetDefault("log.format", "text")
	v.SetDefault("log.debug", false)
}

// Load reads configuration into v from path (optional) and the environment, then validates it.
// Flags must already be bound to v by the caller.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	issuer, err := url.Parse(c.Issuer)
	if err != nil || issuer.Scheme == "" || issuer.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL, got %q", c.Issuer)
	}
	if issuer.RawQuery != "" || issuer.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment (RFC 8414 Section 2)")
	}

	switch c.Storage.Driver {
	case factory.DriverMemory:
	case factory.DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite driver")
		}
	case factory.DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.Storage.Driver)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	switch c.Telemetry.TracesExporter {
	case instrumentation.TracesExporterNone, instrumentation.TracesExporterOTLP:
	default:
		return fmt.Errorf("telemetry.traces_exporter must be none or otlp, got %q", c.Telemetry.TracesExporter)
	}

	if c.Telemetry.TraceSamplingRate < 0 || c.Telemetry.TraceSamplingRate > 1 {
		return fmt.Errorf("telemetry.trace_sampling_rate must be between 0 and 1")
	}

	return nil
}

// OAuth returns the library configuration for oauth.NewServer
func (c *Config) OAuth(logger *slog.Logger, inst *instrumentation.Instrumentation) *oauth.Config {
	return &oauth.Config{
		Issuer:          c.Issuer,
		SupportedScopes: c.SupportedScopes,
		Tokens: oauth.TokenConfig{
			AuthorizationCodeTTL: c.Tokens.AuthorizationCodeTTL,
			AccessTokenTTL:       c.Tokens.AccessTokenTTL,
			RefreshTokenTTL:      c.Tokens.RefreshTokenTTL,
			IssueRefreshTokens:   c.Tokens.IssueRefreshTokens,
		},
		Security: oauth.SecurityConfig{
			TrustProxy:           c.Security.TrustProxy,
			TrustedProxyCount:    c.Security.TrustedProxyCount,
			ClockSkewGracePeriod: c.Security.ClockSkewGracePeriod,
			EnableAuditLogging:   c.Security.AuditLogging,
		},
		CleanupInterval: c.Storage.CleanupInterval,
		Instrumentation: inst,
		Logger:          logger,
	}
}

// StorageFactory returns the storage factory configuration
func (c *Config) StorageFactory() factory.Config {
	return factory.Config{
		Driver:          c.Storage.Driver,
		CleanupInterval: c.Storage.CleanupInterval,
		SQLitePath:      c.Storage.SQLite.Path,
		Redis: redis.Config{
			Addr:      c.Storage.Redis.Addr,
			Username:  c.Storage.Redis.Username,
			Password:  c.Storage.Redis.Password,
			DB:        c.Storage.Redis.DB,
			KeyPrefix: c.Storage.Redis.KeyPrefix,
		},
	}
}

// Instrumentation returns the OpenTelemetry configuration.
// The Prometheus exporter is enabled whenever a metrics address is set.
func (c *Config) Instrumentation(version string) instrumentation.Config {
	metricsExporter := instrumentation.MetricsExporterNone
	if c.Telemetry.MetricsAddr != "" {
		metricsExporter = instrumentation.MetricsExporterPrometheus
	}
	return instrumentation.Config{
		ServiceVersion:    version,
		Enabled:           c.Telemetry.Enabled || c.Telemetry.MetricsAddr != "",
		LogClientIPs:      c.Telemetry.LogClientIPs,
		MetricsExporter:   metricsExporter,
		TracesExporter:    c.Telemetry.TracesExporter,
		OTLPEndpoint:      c.Telemetry.OTLPEndpoint,
		OTLPInsecure:      c.Telemetry.OTLPInsecure,
		TraceSamplingRate: c.Telemetry.TraceSamplingRate,
	}
}
