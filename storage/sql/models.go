package sql

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/keyper-oauth/keyper/storage"
)

// ClientRecord is the GORM model for registered clients
type ClientRecord struct {
	ClientID         string         `gorm:"primaryKey;type:varchar(255)"`
	ClientType       string         `gorm:"type:varchar(32);not null"`
	RedirectURIs     datatypes.JSON `gorm:"column:redirect_uris"`
	ClientName       string
	ClientSecretHash string
	CreatedAt        time.Time
}

// TableName overrides the GORM table name
func (ClientRecord) TableName() string { return "clients" }

// GrantRecord is the GORM model for outstanding authorization grants.
// Rows are keyed by the SHA-256 digest of the code; the code itself is not stored.
type GrantRecord struct {
	CodeHash    string         `gorm:"primaryKey;type:char(64)"`
	GrantID     string         `gorm:"type:varchar(64);not null"`
	ClientID    string         `gorm:"type:varchar(255);not null;index"`
	RedirectURI string         `gorm:"not null"`
	Scopes      datatypes.JSON `gorm:"column:scopes"`
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   *time.Time `gorm:"index"`
}

// TableName overrides the GORM table name
func (GrantRecord) TableName() string { return "grants" }

func toClientRecord(c *storage.Client) (*ClientRecord, error) {
	uris, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal redirect uris: %w", err)
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &ClientRecord{
		ClientID:         c.ClientID,
		ClientType:       string(c.ClientType),
		RedirectURIs:     datatypes.JSON(uris),
		ClientName:       c.ClientName,
		ClientSecretHash: c.ClientSecretHash,
		CreatedAt:        createdAt,
	}, nil
}

func (r *ClientRecord) toClient() (*storage.Client, error) {
	var uris []string
	if len(r.RedirectURIs) > 0 {
		if err := json.Unmarshal(r.RedirectURIs, &uris); err != nil {
			return nil, fmt.Errorf("failed to unmarshal redirect uris: %w", err)
		}
	}
	return &storage.Client{
		ClientID:         r.ClientID,
		ClientType:       storage.ClientType(r.ClientType),
		RedirectURIs:     uris,
		ClientName:       r.ClientName,
		ClientSecretHash: r.ClientSecretHash,
		CreatedAt:        r.CreatedAt,
	}, nil
}

func toGrantRecord(g *storage.Grant) (*GrantRecord, error) {
	scopes, err := json.Marshal(g.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scopes: %w", err)
	}
	r := &GrantRecord{
		CodeHash:    storage.HashCode(g.Code),
		GrantID:     g.ID,
		ClientID:    g.ClientID,
		RedirectURI: g.RedirectURI,
		Scopes:      datatypes.JSON(scopes),
		UserID:      g.UserID,
		CreatedAt:   g.CreatedAt.UTC(),
	}
	if !g.ExpiresAt.IsZero() {
		exp := g.ExpiresAt.UTC()
		r.ExpiresAt = &exp
	}
	return r, nil
}

func (r *GrantRecord) toGrant(code string) (*storage.Grant, error) {
	var scopes []string
	if len(r.Scopes) > 0 {
		if err := json.Unmarshal(r.Scopes, &scopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
	}
	g := &storage.Grant{
		ID:          r.GrantID,
		Code:        code,
		ClientID:    r.ClientID,
		RedirectURI: r.RedirectURI,
		Scopes:      scopes,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
	}
	if r.ExpiresAt != nil {
		g.ExpiresAt = *r.ExpiresAt
	}
	return g, nil
}
