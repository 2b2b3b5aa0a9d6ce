// Package security holds the HTTP hardening of the walletscope API: response
// headers, CORS for the web client, and checks on outbound origin URLs.
package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// apiHeaders go on every response. The API serves JSON only, so the CSP
// forbids every fetch and any framing.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
}

// Headers the web client sends (session token, admin secret) and reads
// (quota, stale-cache marker, request id).
var (
	corsAllowMethods  = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}, ", ")
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-ID, X-Admin-Secret"
	corsExposeHeaders = "X-RateLimit-Remaining, X-Cache-Stale, X-Request-ID"
)

// HeadersMiddleware sets apiHeaders.
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range apiHeaders {
			c.Header(h[0], h[1])
		}
		c.Next()
	}
}

// CORSMiddleware grants cross-origin access to allowedOrigins. An empty list
// or "*" allows any origin, without credentials. Preflight requests end here
// with 204.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	anyOrigin := len(allowed) == 0 || allowed["*"]

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if anyOrigin || allowed[origin] {
			h := c.Writer.Header()
			if origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Max-Age", "86400")
			// Browsers reject credentials with a wildcard origin.
			if !anyOrigin {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
