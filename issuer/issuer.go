// Package issuer generates authorization codes and access token values.
//
// Both generators draw from crypto/rand by default. The source is injectable so that
// tests can produce deterministic values.
package issuer

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

const (
	// DefaultCodeLength is the length of generated authorization codes
	DefaultCodeLength = 24

	// alphanumeric is the authorization code alphabet
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// maxUnbiasedByte is the largest multiple of len(alphanumeric) that fits in a byte.
	// Bytes at or above it are rejected so every character is equally likely.
	maxUnbiasedByte = 256 - (256 % len(alphanumeric))

	// tokenEntropyBytes matches the entropy of oauth2.GenerateVerifier
	tokenEntropyBytes = 32
)

// CodeIssuer produces authorization code values
type CodeIssuer interface {
	Generate() (string, error)
}

// TokenIssuer produces access and refresh token values
type TokenIssuer interface {
	Generate() (string, error)
}

// Alphanumeric generates fixed-length codes over [A-Za-z0-9]
type Alphanumeric struct {
	// Length of generated codes. Default: DefaultCodeLength
	Length int

	// Rand is the randomness source. Default: crypto/rand.Reader
	Rand io.Reader
}

var _ CodeIssuer = (*Alphanumeric)(nil)

// NewCodeIssuer returns an issuer of 24 character alphanumeric codes backed by crypto/rand
func NewCodeIssuer() *Alphanumeric {
	return &Alphanumeric{Length: DefaultCodeLength}
}

// Generate returns a new code
func (a *Alphanumeric) Generate() (string, error) {
	length := a.Length
	if length <= 0 {
		length = DefaultCodeLength
	}
	src := a.Rand
	if src == nil {
		src = rand.Reader
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Opaque generates URL-safe random token values with 256 bits of entropy
type Opaque struct {
	// Rand is the randomness source. When nil, oauth2.GenerateVerifier is used.
	Rand io.Reader
}

var _ TokenIssuer = (*Opaque)(nil)

// NewTokenIssuer returns an issuer of opaque bearer token values
func NewTokenIssuer() *Opaque {
	return &Opaque{}
}

// Generate returns a new token value
func (o *Opaque) Generate() (string, error) {
	if o.Rand == nil {
		return oauth2.GenerateVerifier(), nil
	}

	buf := make([]byte, tokenEntropyBytes)
	if _, err := io.ReadFull(o.Rand, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
