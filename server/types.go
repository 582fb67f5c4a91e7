package server

import "time"

// Protocol values accepted by the decision engines
const (
	ResponseTypeCode           = "code"
	GrantTypeAuthorizationCode = "authorization_code"
	TokenTypeBearer            = "Bearer"
)

// AuthorizationRequest is the input of Authorize (RFC 6749 section 4.1.1).
// Optional fields use the empty string for "absent".
type AuthorizationRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string

	// UserID is the authenticated resource owner, if the caller knows one
	UserID string

	// ClientIP is recorded in audit events only
	ClientIP string
}

// AuthorizationResult is a granted authorization request.
// The caller delivers Code and State to RedirectURI.
type AuthorizationResult struct {
	Code        string
	State       string
	RedirectURI string

	// GrantID correlates the issued code with logs and audit events
	GrantID string
}

// AccessTokenRequest is the input of Exchange (RFC 6749 section 4.1.3).
// Optional fields use the empty string for "absent".
type AccessTokenRequest struct {
	GrantType   string
	Code        string
	RedirectURI string
	ClientID    string

	// ClientIP is recorded in audit events only
	ClientIP string
}

// AccessToken is a successful exchange (RFC 6749 section 5.1)
type AccessToken struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64 // seconds
	RefreshToken string
	Scope        string

	// ExpiresAt is the absolute expiry of AccessToken; not sent to clients
	ExpiresAt time.Time

	// RefreshExpiresAt is the absolute expiry of RefreshToken, zero when none was issued
	RefreshExpiresAt time.Time
}
