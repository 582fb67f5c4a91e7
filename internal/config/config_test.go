package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/storage/factory"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyper.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.Issuer != "http://localhost:3000" {
		t.Errorf("Issuer = %q, want %q", cfg.Issuer, "http://localhost:3000")
	}
	if cfg.Storage.Driver != factory.DriverMemory {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, factory.DriverMemory)
	}
	if cfg.Tokens.AuthorizationCodeTTL != 10*time.Minute {
		t.Errorf("Tokens.AuthorizationCodeTTL = %v, want %v", cfg.Tokens.AuthorizationCodeTTL, 10*time.Minute)
	}
	if cfg.Security.ClockSkewGracePeriod != 5*time.Second {
		t.Errorf("Security.ClockSkewGracePeriod = %v, want %v", cfg.Security.ClockSkewGracePeriod, 5*time.Second)
	}
	if !cfg.Security.AuditLogging {
		t.Error("Security.AuditLogging should default to true")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
issuer: https://auth.example.com
port: 8443
clients_file: /etc/keyper/clients.yaml
supported_scopes: [read, write]
tokens:
  authorization_code_ttl: 5m
  access_token_ttl: 30m
  issue_refresh_tokens: true
security:
  trust_proxy: true
  trusted_proxy_count: 2
storage:
  driver: redis
  redis:
    addr: redis.internal:6379
    db: 3
log:
  format: json
`)

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Config{
		Issuer:          "https://auth.example.com",
		Port:            8443,
		ClientsFile:     "/etc/keyper/clients.yaml",
		SupportedScopes: []string{"read", "write"},
		Tokens: TokensConfig{
			AuthorizationCodeTTL: 5 * time.Minute,
			AccessTokenTTL:       30 * time.Minute,
			RefreshTokenTTL:      90 * 24 * time.Hour,
			IssueRefreshTokens:   true,
		},
		Security: SecurityConfig{
			TrustProxy:           true,
			TrustedProxyCount:    2,
			ClockSkewGracePeriod: 5 * time.Second,
			AuditLogging:         true,
		},
		Storage: StorageConfig{
			Driver:          factory.DriverRedis,
			CleanupInterval: time.Minute,
			SQLite:          SQLiteConfig{Path: "keyper.db"},
			Redis: RedisConfig{
				Addr:      "redis.internal:6379",
				DB:        3,
				KeyPrefix: "keyper:",
			},
		},
		Telemetry: TelemetryConfig{
			TracesExporter:    instrumentation.TracesExporterNone,
			OTLPEndpoint:      "localhost:4318",
			TraceSamplingRate: 1.0,
		},
		Log: LogConfig{Format: "json"},
	}

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KEYPER_PORT", "9000")
	t.Setenv("KEYPER_STORAGE_DRIVER", "sqlite")
	t.Setenv("KEYPER_STORAGE_SQLITE_PATH", "/var/lib/keyper/keyper.db")
	t.Setenv("KEYPER_TOKENS_ISSUE_REFRESH_TOKENS", "true")

	path := writeConfig(t, "port: 8000\n")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000 (environment beats file)", cfg.Port)
	}
	if cfg.Storage.Driver != factory.DriverSQLite {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, factory.DriverSQLite)
	}
	if cfg.Storage.SQLite.Path != "/var/lib/keyper/keyper.db" {
		t.Errorf("Storage.SQLite.Path = %q", cfg.Storage.SQLite.Path)
	}
	if !cfg.Tokens.IssueRefreshTokens {
		t.Error("Tokens.IssueRefreshTokens should be set from the environment")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() with a missing file should fail")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(viper.New(), "")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Port = 0 }, "port must be"},
		{"port too large", func(c *Config) { c.Port = 70000 }, "port must be"},
		{"relative issuer", func(c *Config) { c.Issuer = "/oauth" }, "absolute URL"},
		{"issuer with query", func(c *Config) { c.Issuer = "https://auth.example.com?x=1" }, "query or fragment"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, "unsupported storage driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.SQLite.Path = "" }, "sqlite.path"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = "redis"; c.Storage.Redis.Addr = "" }, "redis.addr"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad traces exporter", func(c *Config) { c.Telemetry.TracesExporter = "zipkin" }, "traces_exporter"},
		{"bad sampling rate", func(c *Config) { c.Telemetry.TraceSamplingRate = 1.5 }, "sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Storage.Driver = factory.DriverRedis
	cfg.Telemetry.MetricsAddr = ":9090"

	oauthCfg := cfg.OAuth(nil, nil)
	if oauthCfg.Tokens.AccessTokenTTL != time.Hour {
		t.Errorf("Tokens.AccessTokenTTL = %v, want %v", oauthCfg.Tokens.AccessTokenTTL, time.Hour)
	}
	if !oauthCfg.Security.EnableAuditLogging {
		t.Error("EnableAuditLogging should follow security.audit_logging")
	}
	if oauthCfg.CleanupInterval != time.Minute {
		t.Errorf("CleanupInterval = %v, want %v", oauthCfg.CleanupInterval, time.Minute)
	}

	storageCfg := cfg.StorageFactory()
	if storageCfg.Driver != factory.DriverRedis || storageCfg.Redis.Addr != "localhost:6379" {
		t.Errorf("StorageFactory() = %+v", storageCfg)
	}

	instCfg := cfg.Instrumentation("1.2.3")
	if !instCfg.Enabled {
		t.Error("metrics address should enable instrumentation")
	}
	if instCfg.MetricsExporter != instrumentation.MetricsExporterPrometheus {
		t.Errorf("MetricsExporter = %q, want %q", instCfg.MetricsExporter, instrumentation.MetricsExporterPrometheus)
	}
	if instCfg.ServiceVersion != "1.2.3" {
		t.Errorf("ServiceVersion = %q, want %q", instCfg.ServiceVersion, "1.2.3")
	}
}
