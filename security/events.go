package security

// Event type constants for security audit logging.
const (
	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationDenied is logged when an authorization request is rejected
	EventAuthorizationDenied = "authorization_denied"

	// EventTokenIssued is logged when an access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventAuthFailure is logged when client authentication fails at the token endpoint
	EventAuthFailure = "auth_failure"

	// EventCodeRedemptionFailed is logged when a presented authorization code is rejected.
	// The code is burned even when the failure happens after it was consumed.
	EventCodeRedemptionFailed = "code_redemption_failed"

	// EventInvalidRedirect is logged when a redirect_uri does not match the client's registration
	EventInvalidRedirect = "invalid_redirect"

	// EventStorageUnavailable is logged when a backing store fails during a decision
	EventStorageUnavailable = "storage_unavailable"
)
