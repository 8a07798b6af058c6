// Package middleware provides Gin HTTP middleware for caller identity, rate
// limiting, request ids, metrics and security headers.
//
// Middleware ordering is set in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → CORS → Security → Caller → RateLimit → Handler
//
// Caller resolution runs first so rate limits are keyed by caller address when
// a token is presented and by client IP otherwise.
package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/contract-factory/contract-factory/internal/auth"
)

// CallerKey is the gin.Context key holding the authenticated caller address.
const CallerKey = "caller"

// bearerToken extracts the token from an Authorization header, or "" when
// the header is absent or not a Bearer credential.
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}

// callerFromToken validates token and returns its subject address.
func callerFromToken(token string) (common.Address, error) {
	claims, err := auth.ValidateJWT(token)
	if err != nil {
		return common.Address{}, err
	}
	return claims.Caller()
}

// CallerMiddleware requires a valid bearer token and stores the caller's
// address under CallerKey. Requests without one get 401.
func CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}

		caller, err := callerFromToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(CallerKey, caller)
		c.Next()
	}
}

// OptionalCallerMiddleware stores the caller when a valid token is present
// and lets anonymous requests through untouched. An invalid token is still
// rejected so clients notice expired credentials.
func OptionalCallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		token, problem := bearerToken(c)
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}
		caller, err := callerFromToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(CallerKey, caller)
		c.Next()
	}
}

// GetCaller returns the caller stored by CallerMiddleware.
func GetCaller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
