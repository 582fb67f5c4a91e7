// Package security provides security-related functionality for the authorization server:
// audit logging, clock skew tolerant expiry checks, client IP extraction and response headers.
//
// # Audit Logging
//
// The Auditor writes one structured "security_audit" record per security relevant decision.
// Client identifiers are logged as-is, user identifiers are replaced by a truncated SHA-256 hash.
// Authorization codes and tokens are never passed to the Auditor.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogCodeIssued(userID, clientID, clientIP, grantID, scope)
//
// # Expiry
//
// IsExpiredAt is strict: a grant is dead from the instant ExpiresAt is reached. IsPurgeable
// adds a grace period (DefaultClockSkewGracePeriod, 5s) and only decides when an expired
// record may be physically removed.
package security
