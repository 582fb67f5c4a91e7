package oauth

import (
	"log/slog"
	"time"

	"github.com/keyper-oauth/keyper/instrumentation"
	"github.com/keyper-oauth/keyper/server"
)

// Config holds the authorization server configuration.
// Structured using composition; zero values get the server package defaults.
type Config struct {
	// Issuer is the server's issuer identifier (base URL), used for metadata and HSTS
	Issuer string

	// SupportedScopes restricts the scopes clients may request. Empty allows any scope.
	SupportedScopes []string

	// Token lifetimes and issuance
	Tokens TokenConfig

	// Security settings
	Security SecurityConfig

	// CleanupInterval is how often expired grants are purged
	// Default: 1 minute
	CleanupInterval time.Duration

	// Instrumentation enables OpenTelemetry spans and metrics (optional)
	Instrumentation *instrumentation.Instrumentation

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// TokenConfig holds code and token lifetime settings
type TokenConfig struct {
	// AuthorizationCodeTTL is how long authorization codes are valid.
	// Default: 10 minutes
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is the access token lifetime reported in expires_in.
	// Default: 1 hour
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is how long refresh tokens remain valid.
	// Default: 90 days
	RefreshTokenTTL time.Duration

	// IssueRefreshTokens adds a refresh token to token responses
	IssueRefreshTokens bool
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the server.
	// Default: 1
	TrustedProxyCount int

	// ClockSkewGracePeriod delays the purge of expired codes so that instances with
	// drifting clocks agree a code is gone. It never extends a code's lifetime.
	ClockSkewGracePeriod time.Duration

	// EnableAuditLogging enables security audit logging.
	// Logs code issuance, token issuance and rejections (user IDs hashed).
	EnableAuditLogging bool
}

// serverConfig translates Config into the server package's configuration
func (c *Config) serverConfig() *server.Config {
	return &server.Config{
		Issuer:               c.Issuer,
		AuthorizationCodeTTL: seconds(c.Tokens.AuthorizationCodeTTL),
		AccessTokenTTL:       seconds(c.Tokens.AccessTokenTTL),
		RefreshTokenTTL:      seconds(c.Tokens.RefreshTokenTTL),
		IssueRefreshTokens:   c.Tokens.IssueRefreshTokens,
		ClockSkewGracePeriod: seconds(c.Security.ClockSkewGracePeriod),
		SupportedScopes:      c.SupportedScopes,
		CleanupInterval:      seconds(c.CleanupInterval),
		TrustProxy:           c.Security.TrustProxy,
		TrustedProxyCount:    c.Security.TrustedProxyCount,
	}
}

// seconds converts d to whole seconds, rounding sub-second values up so they are not lost
func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
