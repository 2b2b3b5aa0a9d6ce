package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyClaims is the key for storing verified session claims in gin context
	ContextKeyClaims = "authClaims"
	// ContextKeyWallet is the key for storing the authenticated wallet address
	ContextKeyWallet = "authWallet"

	adminHeader = "X-Admin-Secret"
)

// Middleware verifies the bearer token when present.
// Sets authClaims and authWallet in context if valid. A nil verifier
// leaves every request unauthenticated.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if v != nil && header != "" {
			if claims, err := v.VerifyBearer(header); err == nil {
				c.Set(ContextKeyClaims, claims)
				c.Set(ContextKeyWallet, strings.ToLower(claims.Subject))
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a valid session
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Sign in required. Include 'Authorization: Bearer <session token>' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin checks the X-Admin-Secret header against secret using a
// constant-time compare. With no secret configured (demo mode) any
// authenticated session passes.
func RequireAdmin(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			if !IsAuthenticated(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "Authentication required.",
				})
				return
			}
			c.Next()
			return
		}

		got := c.GetHeader(adminHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required.",
			})
			return
		}
		c.Next()
	}
}

// GetClaims returns the verified claims from context (if authenticated)
func GetClaims(c *gin.Context) (*Claims, bool) {
	v, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// GetAuthenticatedWallet returns the signed-in wallet address
func GetAuthenticatedWallet(c *gin.Context) string {
	addr, exists := c.Get(ContextKeyWallet)
	if !exists {
		return ""
	}
	s, _ := addr.(string)
	return s
}

// IsAuthenticated checks if the request carries a verified session
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get(ContextKeyClaims)
	return exists
}
