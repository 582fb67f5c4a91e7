package server

import (
	"errors"
	"net/http"
	"testing"
)

func TestAuthorizationErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code AuthorizationErrorCode
		want int
	}{
		{AuthErrInvalidRequest, http.StatusBadRequest},
		{AuthErrUnauthorizedClient, http.StatusUnauthorized},
		{AuthErrAccessDenied, http.StatusForbidden},
		{AuthErrUnsupportedResponseType, http.StatusBadRequest},
		{AuthErrInvalidScope, http.StatusBadRequest},
		{AuthErrServerError, http.StatusInternalServerError},
		{AuthErrTemporarilyUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokenErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code TokenErrorCode
		want int
	}{
		{TokenErrInvalidRequest, http.StatusBadRequest},
		{TokenErrInvalidClient, http.StatusUnauthorized},
		{TokenErrInvalidGrant, http.StatusBadRequest},
		{TokenErrUnauthorizedClient, http.StatusBadRequest},
		{TokenErrUnsupportedGrantType, http.StatusBadRequest},
		{TokenErrInvalidScope, http.StatusBadRequest},
		{TokenErrServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrors_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"authorization bare", &AuthorizationError{Code: AuthErrAccessDenied}, "access_denied"},
		{"authorization described", &AuthorizationError{Code: AuthErrInvalidRequest, Description: "redirect_uri mismatch"}, "invalid_request: redirect_uri mismatch"},
		{"token bare", &TokenError{Code: TokenErrInvalidGrant}, "invalid_grant"},
		{"token described", &TokenError{Code: TokenErrInvalidClient, Description: "bad secret"}, "invalid_client: bad secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrors_As(t *testing.T) {
	var err error = newTokenError(TokenErrInvalidGrant)

	var tokenErr *TokenError
	if !errors.As(err, &tokenErr) {
		t.Fatal("errors.As should find *TokenError")
	}
	if tokenErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want %d", tokenErr.HTTPStatus(), http.StatusBadRequest)
	}
}
