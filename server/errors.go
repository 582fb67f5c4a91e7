package server

import (
	"fmt"
	"net/http"
)

// AuthorizationErrorCode is an error code returned by the authorization endpoint (RFC 6749 section 4.1.2.1)
type AuthorizationErrorCode string

// Authorization endpoint error codes
const (
	AuthErrInvalidRequest          AuthorizationErrorCode = "invalid_request"
	AuthErrUnauthorizedClient      AuthorizationErrorCode = "unauthorized_client"
	AuthErrAccessDenied            AuthorizationErrorCode = "access_denied"
	AuthErrUnsupportedResponseType AuthorizationErrorCode = "unsupported_response_type"
	AuthErrInvalidScope            AuthorizationErrorCode = "invalid_scope"
	AuthErrServerError             AuthorizationErrorCode = "server_error"
	AuthErrTemporarilyUnavailable  AuthorizationErrorCode = "temporarily_unavailable"
)

// HTTPStatus returns the status code the authorization endpoint responds with
func (c AuthorizationErrorCode) HTTPStatus() int {
	switch c {
	case AuthErrUnauthorizedClient:
		return http.StatusUnauthorized
	case AuthErrAccessDenied:
		return http.StatusForbidden
	case AuthErrServerError:
		return http.StatusInternalServerError
	case AuthErrTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// TokenErrorCode is an error code returned by the token endpoint (RFC 6749 section 5.2)
type TokenErrorCode string

// Token endpoint error codes
const (
	TokenErrInvalidRequest       TokenErrorCode = "invalid_request"
	TokenErrInvalidClient        TokenErrorCode = "invalid_client"
	TokenErrInvalidGrant         TokenErrorCode = "invalid_grant"
	TokenErrUnauthorizedClient   TokenErrorCode = "unauthorized_client"
	TokenErrUnsupportedGrantType TokenErrorCode = "unsupported_grant_type"
	TokenErrInvalidScope         TokenErrorCode = "invalid_scope"

	// TokenErrServerError is not part of the RFC 6749 token error set. It is
	// returned when the grant store cannot be reached.
	TokenErrServerError TokenErrorCode = "server_error"
)

// HTTPStatus returns the status code the token endpoint responds with
func (c TokenErrorCode) HTTPStatus() int {
	switch c {
	case TokenErrInvalidClient:
		return http.StatusUnauthorized
	case TokenErrServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AuthorizationError is a rejected authorization request.
// State carries the request's state value unchanged, empty when none was sent.
type AuthorizationError struct {
	Code        AuthorizationErrorCode
	Description string
	URI         string
	State       string
}

// Error implements the error interface
func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the response status for this error
func (e *AuthorizationError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// TokenError is a rejected access token request
type TokenError struct {
	Code        TokenErrorCode
	Description string
	URI         string
}

// Error implements the error interface
func (e *TokenError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// HTTPStatus returns the response status for this error
func (e *TokenError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

func newAuthorizationError(code AuthorizationErrorCode, state string) *AuthorizationError {
	return &AuthorizationError{Code: code, State: state}
}

func newTokenError(code TokenErrorCode) *TokenError {
	return &TokenError{Code: code}
}
