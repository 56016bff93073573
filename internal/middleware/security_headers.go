package middleware

import (
	"net/http"
	"strings"
)

type SecurityHeadersConfig struct {
	Env string
}

// The clinic UI is same-origin, so production CSP locks everything to 'self'.
var productionCSP = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self'",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data:",
	"font-src 'self'",
	"connect-src 'self'",
	"frame-ancestors 'none'",
	"base-uri 'self'",
	"form-action 'self'",
}, "; ")

// Development stays lenient for the frontend dev server and its websockets.
var developmentCSP = strings.Join([]string{
	"default-src 'self' http: https: ws:",
	"script-src 'self' 'unsafe-inline' 'unsafe-eval' http: https: ws:",
	"style-src 'self' 'unsafe-inline' http: https:",
	"img-src 'self' data: https: http:",
	"connect-src 'self' http: https: ws: wss:",
	"frame-ancestors 'self'",
	"base-uri 'self'",
	"form-action 'self'",
}, "; ")

// SecurityHeaders sets the standard browser hardening headers on every
// response. HSTS is only sent when the request actually arrived over TLS.
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	prod := config.Env == "production"
	csp := developmentCSP
	if prod {
		csp = productionCSP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", csp)
			h.Set("Permissions-Policy",
				"accelerometer=(), camera=(), geolocation=(), microphone=(), payment=(), usb=()")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")

			if prod && overTLS(r) {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func overTLS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" || r.URL.Scheme == "https"
}
