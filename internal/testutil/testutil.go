// Package testutil provides testing utilities and helpers for the keyper packages.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/keyper-oauth/keyper/storage"
)

// Example client registrations from RFC 6749
const (
	TestClientID    = "s6BhdRkqt3"
	TestRedirectURI = "https://client.example.com/cb"
	TestState       = "xyz"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// GenerateTestClient creates a confidential test client with one redirect URI
func GenerateTestClient() *storage.Client {
	return &storage.Client{
		ClientID:     TestClientID,
		ClientType:   storage.ClientTypeConfidential,
		RedirectURIs: []string{TestRedirectURI},
		ClientName:   "Test Client",
		CreatedAt:    time.Now(),
	}
}

// GenerateTestGrant creates a live grant for the test client
func GenerateTestGrant() *storage.Grant {
	now := time.Now()
	return &storage.Grant{
		ID:          GenerateRandomString(16),
		Code:        GenerateRandomString(24),
		ClientID:    TestClientID,
		RedirectURI: TestRedirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
}

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}
