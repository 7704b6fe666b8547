package middleware

import (
	"net/http"
)

// SecurityHeadersMiddleware adds hardening headers to ops-surface
// responses.
type SecurityHeadersMiddleware struct {
	headers map[string]string
}

// DefaultSecurityHeaders returns the header set applied to the ops
// surface. The endpoints serve JSON only, so framing and content sniffing
// are denied outright.
func DefaultSecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"Cache-Control":          "no-store, no-cache, must-revalidate",
	}
}

// NewSecurityHeadersMiddleware creates security headers middleware;
// nil headers selects DefaultSecurityHeaders.
func NewSecurityHeadersMiddleware(headers map[string]string) *SecurityHeadersMiddleware {
	if headers == nil {
		headers = DefaultSecurityHeaders()
	}
	return &SecurityHeadersMiddleware{headers: headers}
}

// Handler returns the security headers middleware handler.
func (m *SecurityHeadersMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for key, value := range m.headers {
			w.Header().Set(key, value)
		}
		next.ServeHTTP(w, r)
	})
}
