package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidClientCredentials is returned when a client secret does not match
var ErrInvalidClientCredentials = errors.New("invalid client credentials")

// dummySecretHash is compared against when the client is unknown or has no secret,
// so that every failed authentication costs one bcrypt comparison.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// HashClientSecret returns a bcrypt hash of secret suitable for a clients file
func HashClientSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("client secret cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// CompareClientSecret checks secret against hash.
// An empty hash always fails, after a comparison against a dummy hash.
func CompareClientSecret(hash, secret string) error {
	toCompare := hash
	if toCompare == "" {
		toCompare = dummySecretHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(toCompare), []byte(secret))
	if hash == "" || err != nil {
		return ErrInvalidClientCredentials
	}
	return nil
}
