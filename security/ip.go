package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address used in audit events.
//
// Forwarding headers are only honoured when trustProxy is set. X-Forwarded-For is read
// from the right, skipping trustedProxyCount hops (minimum 1) that belong to our own proxies.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func clientIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	if trustedProxyCount <= 0 {
		trustedProxyCount = 1
	}

	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(hops[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
