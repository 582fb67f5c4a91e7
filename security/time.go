package security

import "time"

const (
	// DefaultClockSkewGracePeriod is how long an expired grant is kept before it is purged.
	// It never extends the period in which a grant can be consumed.
	DefaultClockSkewGracePeriod = 5 * time.Second
)

// IsExpired reports whether expiresAt has been reached
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredAt(expiresAt, time.Now())
}

// IsExpiredAt reports whether expiresAt has been reached at now.
// A grant expiring at exactly now is expired. A zero expiresAt never expires.
func IsExpiredAt(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !now.Before(expiresAt)
}

// IsPurgeable reports whether expiresAt lies more than gracePeriod before now,
// so the record may be physically removed. Negative grace counts as zero.
func IsPurgeable(expiresAt, now time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	if gracePeriod < 0 {
		gracePeriod = 0
	}
	return now.After(expiresAt.Add(gracePeriod))
}
