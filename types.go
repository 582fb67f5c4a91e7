package oauth

// ErrorResponse is the JSON body of a rejected authorization or token request
// (RFC 6749 sections 4.1.2.1 and 5.2).
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`

	// State is only set on authorization endpoint errors, copied from the request
	State string `json:"state,omitempty"`
}

// TokenResponse is the JSON body of a successful exchange (RFC 6749 Section 5.1).
// expires_in is always present.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// AuthorizationServerMetadata is served at /.well-known/oauth-authorization-server (RFC 8414).
// Only the fields this server can honour are published.
type AuthorizationServerMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`

	// ScopesSupported is omitted when every scope is accepted
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}
