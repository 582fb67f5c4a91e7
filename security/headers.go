package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the headers shared by every authorization server response.
// Strict-Transport-Security is only sent when issuer is an https URL.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(issuer); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

// SetNoStoreHeaders marks a response as uncacheable (RFC 6749 Section 5.1).
// Required on every response that carries a token or an authorization code.
func SetNoStoreHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
