package server

import (
	"log/slog"
	"strings"
	"time"
)

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is the lifetime reported in expires_in
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 7776000 (90 days)

	// IssueRefreshTokens adds a refresh token to every successful exchange.
	// Default: false
	IssueRefreshTokens bool

	// ClockSkewGracePeriod is how long expired grants are kept before they are purged (in seconds).
	// Stores that support it are configured with this value by New. A grant can never be
	// consumed past its expiry, whatever the value. Zero purges immediately.
	ClockSkewGracePeriod int64 // seconds, default: 0

	// SupportedScopes lists the scopes clients may request.
	// If empty, all scopes are allowed
	SupportedScopes []string

	// CleanupInterval is how often RunCleanup purges expired grants
	CleanupInterval int64 // seconds, default: 60

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// The client IP will be extracted as: ips[len(ips) - TrustedProxyCount - 1]
	// Default: 1
	TrustedProxyCount int // default: 1
}

// applySecureDefaults applies default configuration values and logs notices
// for settings that weaken the server's guarantees
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 7776000 // 90 days
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 60
	}
}

// logSecurityWarnings logs warnings for configuration settings that need attention
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.TrustProxy {
		logger.Warn("SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"config", "TrustedProxyCount should match your proxy chain length")
	}
	if config.AuthorizationCodeTTL > 600 {
		logger.Warn("SECURITY NOTICE: Authorization code lifetime exceeds 10 minutes",
			"authorization_code_ttl", config.AuthorizationCodeTTL,
			"recommendation", "RFC 6749 section 4.1.2 recommends a maximum of 10 minutes")
	}
	if config.ClockSkewGracePeriod < 0 {
		logger.Warn("CONFIGURATION WARNING: Negative clock skew grace period treated as zero",
			"clock_skew_grace_period", config.ClockSkewGracePeriod)
		config.ClockSkewGracePeriod = 0
	}
}

// AuthorizationEndpoint returns the full URL of the authorization endpoint
func (c *Config) AuthorizationEndpoint() string {
	return strings.TrimSuffix(c.Issuer, "/") + "/authorize"
}

// TokenEndpoint returns the full URL of the token endpoint
func (c *Config) TokenEndpoint() string {
	return strings.TrimSuffix(c.Issuer, "/") + "/token"
}

// codeTTL returns the authorization code lifetime
func (c *Config) codeTTL() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}

// clockSkewGrace returns the clock skew grace period
func (c *Config) clockSkewGrace() time.Duration {
	return time.Duration(c.ClockSkewGracePeriod) * time.Second
}

// cleanupInterval returns the expired grant purge interval
func (c *Config) cleanupInterval() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Second
}

// scopeSupported reports whether every requested scope is allowed
func (c *Config) scopeSupported(scopes []string) bool {
	if len(c.SupportedScopes) == 0 {
		return true
	}
	for _, requested := range scopes {
		allowed := false
		for _, supported := range c.SupportedScopes {
			if requested == supported {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}
