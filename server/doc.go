// Package server makes the decisions of an OAuth 2.0 authorization server for
// the authorization code grant (RFC 6749 section 4.1).
//
// Authorize decides whether a one-time authorization code is issued and to
// which redirect URI it is delivered. Exchange decides whether a presented code
// is redeemed for an access token. Both return protocol errors as values that
// carry their HTTP status; transport concerns live in the root oauth package.
//
// The Server delegates to:
//   - a client registry and a grant store (storage package)
//   - code and token generators (issuer package)
//   - auditing (security package) and OpenTelemetry (instrumentation package)
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, store, &server.Config{
//	    Issuer: "https://auth.example.com",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, authErr := srv.Authorize(ctx, &server.AuthorizationRequest{
//	    ResponseType: "code",
//	    ClientID:     "s6BhdRkqt3",
//	    State:        "xyz",
//	})
package server
