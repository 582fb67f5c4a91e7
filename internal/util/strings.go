// Package util provides small helpers shared by the keyper packages.
package util

import (
	"fmt"
	"net/url"
)

// CodeLogPrefixLength is the number of characters of a code or token that may appear in logs
const CodeLogPrefixLength = 8

// SafeTruncate returns at most maxLen bytes of s without panicking.
// A negative maxLen yields "".
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// AppendQuery adds params to the query of rawURL, keeping any query it already carries
// (RFC 6749 Section 3.1.2). Parameters with an empty value are skipped.
func AppendQuery(rawURL string, params ...string) (string, error) {
	if len(params)%2 != 0 {
		return "", fmt.Errorf("params must be key/value pairs")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	q := u.Query()
	for i := 0; i < len(params); i += 2 {
		if params[i+1] == "" {
			continue
		}
		q.Set(params[i], params[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
