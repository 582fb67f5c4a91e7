package redis

import (
	"time"

	"github.com/keyper-oauth/keyper/storage"
)

// clientJSON is the stored form of a client
type clientJSON struct {
	ClientID         string   `json:"client_id"`
	ClientType       string   `json:"client_type"`
	RedirectURIs     []string `json:"redirect_uris,omitempty"`
	ClientName       string   `json:"client_name,omitempty"`
	ClientSecretHash string   `json:"client_secret_hash,omitempty"`
	CreatedAt        int64    `json:"created_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &clientJSON{
		ClientID:         c.ClientID,
		ClientType:       string(c.ClientType),
		RedirectURIs:     c.RedirectURIs,
		ClientName:       c.ClientName,
		ClientSecretHash: c.ClientSecretHash,
		CreatedAt:        createdAt.Unix(),
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	return &storage.Client{
		ClientID:         j.ClientID,
		ClientType:       storage.ClientType(j.ClientType),
		RedirectURIs:     j.RedirectURIs,
		ClientName:       j.ClientName,
		ClientSecretHash: j.ClientSecretHash,
		CreatedAt:        time.Unix(j.CreatedAt, 0),
	}
}

// grantJSON is the stored form of a grant. The code itself is not stored;
// the key already derives from it.
type grantJSON struct {
	ID          string   `json:"id"`
	ClientID    string   `json:"client_id"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
	CreatedAt   int64    `json:"created_at"` // unix milliseconds
	ExpiresAt   int64    `json:"expires_at"` // unix milliseconds, 0 = never
}

func toGrantJSON(g *storage.Grant) *grantJSON {
	j := &grantJSON{
		ID:          g.ID,
		ClientID:    g.ClientID,
		RedirectURI: g.RedirectURI,
		Scopes:      g.Scopes,
		UserID:      g.UserID,
		CreatedAt:   g.CreatedAt.UnixMilli(),
	}
	if !g.ExpiresAt.IsZero() {
		j.ExpiresAt = g.ExpiresAt.UnixMilli()
	}
	return j
}

func fromGrantJSON(j *grantJSON, code string) *storage.Grant {
	g := &storage.Grant{
		ID:          j.ID,
		Code:        code,
		ClientID:    j.ClientID,
		RedirectURI: j.RedirectURI,
		Scopes:      j.Scopes,
		UserID:      j.UserID,
		CreatedAt:   time.UnixMilli(j.CreatedAt),
	}
	if j.ExpiresAt != 0 {
		g.ExpiresAt = time.UnixMilli(j.ExpiresAt)
	}
	return g
}
