package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never put authorization codes, access tokens, refresh tokens or
// client secrets into traces or metrics. Traces are usually kept longer and shown to a
// wider audience than the production systems that emit them. Record metadata only.
const (
	// OAuth flow attributes
	AttrClientID     = "oauth.client_id"     // Client identifier (non-secret)
	AttrUserID       = "oauth.user_id"       // User identifier (non-secret)
	AttrScope        = "oauth.scope"         // Requested scopes
	AttrGrantType    = "oauth.grant_type"    // OAuth grant type
	AttrResponseType = "oauth.response_type" // OAuth response type
	AttrClientType   = "oauth.client_type"   // Client type (public/confidential)
	AttrStatePresent = "oauth.state_present" // Whether a state parameter was supplied
	AttrGrantID      = "oauth.grant_id"      // Internal grant identifier
	AttrTokenType    = "oauth.token_type"    //nolint:gosec // Token type (Bearer) - NOT the actual token
	AttrExpiresIn    = "oauth.expires_in"    // Token lifetime in seconds
	AttrRefreshToken = "oauth.refresh_issued" //nolint:gosec // Whether a refresh token was issued (boolean)
	AttrError        = "oauth.error"         // Error code

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Security attributes
	AttrClientIP       = "security.client_ip"
	AttrAuditEventType = "security.audit.event_type"

	// HTTP attributes (in addition to standard semantic conventions)
	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddOAuthFlowAttributes adds common OAuth flow attributes to a span (nil-safe)
func AddOAuthFlowAttributes(span trace.Span, clientID, userID, scope string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	if userID != "" {
		SetSpanAttributes(span, attribute.String(AttrUserID, userID))
	}
	if scope != "" {
		SetSpanAttributes(span, attribute.String(AttrScope, scope))
	}
}

// AddTokenAttributes adds attributes describing an issued token to a span (nil-safe)
func AddTokenAttributes(span trace.Span, tokenType string, expiresIn int64, refreshIssued bool) {
	SetSpanAttributes(span,
		attribute.String(AttrTokenType, tokenType),
		attribute.Int64(AttrExpiresIn, expiresIn),
		attribute.Bool(AttrRefreshToken, refreshIssued),
	)
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddSecurityAttributes adds the client IP to a span (nil-safe).
//
// Client IP addresses may be personal data. Callers check ShouldLogClientIPs first:
//
//	if inst.ShouldLogClientIPs() {
//	    AddSecurityAttributes(span, clientIP)
//	}
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
