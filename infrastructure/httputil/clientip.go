package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the best-effort client IP for rate-limit keying on the
// ops surface. Forwarded headers are only trusted when the direct peer is
// on a private network (the usual ingress/proxy layout); a request straight
// from the internet falls back to RemoteAddr so the headers cannot be
// spoofed.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	remoteIP := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remoteIP); err == nil {
		remoteIP = host
	}

	parsedRemote := net.ParseIP(remoteIP)
	trustForwarded := parsedRemote != nil && (parsedRemote.IsPrivate() || parsedRemote.IsLoopback() || parsedRemote.IsLinkLocalUnicast())

	if trustForwarded {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			candidate := strings.TrimSpace(strings.Split(xff, ",")[0])
			if host, _, err := net.SplitHostPort(candidate); err == nil {
				candidate = host
			}
			if candidate != "" {
				return candidate
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			if host, _, err := net.SplitHostPort(xri); err == nil {
				xri = host
			}
			if xri != "" {
				return xri
			}
		}
	}

	return remoteIP
}
