package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Enabled reports whether events are written
func (a *Auditor) Enabled() bool {
	return a != nil && a.enabled
}

// Event represents a security audit event
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	RequestID string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.Enabled() {
		return
	}

	event.Timestamp = a.now()

	attrs := []any{
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"timestamp", event.Timestamp,
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}

	a.logger.Info("security_audit", attrs...)
}

// LogCodeIssued logs when an authorization code is issued
func (a *Auditor) LogCodeIssued(userID, clientID, ipAddress, grantID, scope string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_id": grantID,
			"scope":    scope,
		},
	})
}

// LogAuthorizationDenied logs when an authorization request is rejected
func (a *Auditor) LogAuthorizationDenied(clientID, ipAddress, errorCode, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationDenied,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"error":  errorCode,
			"reason": reason,
		},
	})
}

// LogTokenIssued logs when a token is issued
func (a *Auditor) LogTokenIssued(userID, clientID, ipAddress, grantID, scope string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_id": grantID,
			"scope":    scope,
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeRedemptionFailed logs a rejected authorization code
func (a *Auditor) LogCodeRedemptionFailed(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventCodeRedemptionFailed,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
