// Package storage defines interfaces for the client registry and the authorization grant store.
// It supports various backend implementations including in-memory, Redis, and SQL databases.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ClientType distinguishes clients that can hold a secret from those that cannot (RFC 6749 Section 2.1)
type ClientType string

const (
	// ClientTypeConfidential is a client capable of maintaining the confidentiality of its credentials
	ClientTypeConfidential ClientType = "confidential"

	// ClientTypePublic is a client that cannot keep credentials confidential (native apps, SPAs)
	ClientTypePublic ClientType = "public"
)

// Valid reports whether t is one of the known client types
func (t ClientType) Valid() bool {
	return t == ClientTypeConfidential || t == ClientTypePublic
}

// ClientRegistry resolves client identifiers to registered clients.
// Lookup is exact and case-sensitive. The core only reads from it.
// All methods accept context.Context for tracing and cancellation.
type ClientRegistry interface {
	// GetClient retrieves a client by ID.
	// Returns an error wrapping ErrClientNotFound when no client is registered under clientID.
	// Any other error means the backing store is unavailable.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// ClientStore is a ClientRegistry that can also be populated, e.g. from a clients file at startup.
type ClientStore interface {
	ClientRegistry

	// SaveClient registers or replaces a client
	SaveClient(ctx context.Context, client *Client) error

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)
}

// GrantStore persists issued authorization codes and the context they are bound to.
//
// A grant's existence in the store means it has not been redeemed yet. ConsumeGrant
// is the only way to redeem it and removes it in the same step.
// All methods accept context.Context for tracing and cancellation.
type GrantStore interface {
	// CreateGrant persists a new grant keyed by its code.
	// Returns an error wrapping ErrGrantExists if a grant with the same code is already present.
	CreateGrant(ctx context.Context, grant *Grant) error

	// ConsumeGrant atomically retrieves and removes the grant for code.
	// Returns an error wrapping ErrGrantNotFound if the code is unknown, already consumed or expired.
	// SECURITY: This operation MUST be atomic. Of any number of concurrent calls with the same
	// code, at most one may succeed.
	ConsumeGrant(ctx context.Context, code string) (*Grant, error)
}

// ExpiredGrantCleaner is implemented by grant stores that can physically purge expired grants.
// This is optional - expired grants are never returned by ConsumeGrant regardless of cleanup.
type ExpiredGrantCleaner interface {
	// DeleteExpiredGrants removes expired grants and returns how many were removed
	DeleteExpiredGrants(ctx context.Context) (int, error)
}

// Client represents a registered OAuth client
type Client struct {
	ClientID         string
	ClientType       ClientType
	RedirectURIs     []string // ordered; the first entry is the default redirect target
	ClientName       string
	ClientSecretHash string // bcrypt hash, optional
	CreatedAt        time.Time
}

// DefaultRedirectURI returns the first registered redirect URI, or "" if none are registered
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// HasRedirectURI reports whether uri exactly matches one of the registered redirect URIs
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// Grant represents an issued, not yet redeemed authorization code together with
// the context it was issued for.
type Grant struct {
	ID          string // correlation identifier for logs and audit events
	Code        string
	ClientID    string
	RedirectURI string // the resolved redirect target the code was delivered to
	Scopes      []string
	UserID      string // resource owner, empty until user authentication is wired in
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Scope returns the granted scopes as a space-delimited string (RFC 6749 Section 3.3)
func (g *Grant) Scope() string {
	return strings.Join(g.Scopes, " ")
}

// ParseScope splits a space-delimited scope string, dropping empty entries
func ParseScope(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// HashCode returns the hex encoded SHA-256 digest of an authorization code.
// Shared backends key grants by this digest so raw codes never sit in the database.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
