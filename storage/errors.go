package storage

import "errors"

var (
	// ErrClientNotFound is returned when no client is registered under the given ID
	ErrClientNotFound = errors.New("client not found")

	// ErrGrantNotFound is returned when an authorization code is unknown, already consumed or expired
	ErrGrantNotFound = errors.New("authorization grant not found")

	// ErrGrantExists is returned when a grant is created for a code that is already stored
	ErrGrantExists = errors.New("authorization grant already exists")
)
