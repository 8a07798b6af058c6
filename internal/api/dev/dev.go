// Package dev implements development-only endpoints. They issue caller tokens
// for arbitrary addresses and are refused unless the process runs in dev mode.
package dev

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contract-factory/contract-factory/internal/auth"
	"github.com/contract-factory/contract-factory/internal/factory"
)

const (
	defaultTokenTTL = 24 * time.Hour
	maxTokenTTL     = 7 * 24 * time.Hour
)

// DevModeMiddleware blocks access to dev endpoints in production
func DevModeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.IsDevMode() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Development endpoints are disabled in production",
			})
			return
		}
		c.Next()
	}
}

// IssueTokenRequest is the body of POST /api/v1/dev/token.
type IssueTokenRequest struct {
	Address string `json:"address" binding:"required"`
	// ExpiresInSecs defaults to 24h and is capped at 7 days.
	ExpiresInSecs int `json:"expires_in_secs"`
}

// IssueTokenHandler signs a caller token for any address so local clients can
// act as several accounts without a wallet.
// POST /api/v1/dev/token
// Protected by DevModeMiddleware - returns 403 in production.
func IssueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IssueTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		caller, err := factory.ParseAddress(req.Address)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
			return
		}

		ttl := defaultTokenTTL
		if req.ExpiresInSecs > 0 {
			ttl = min(time.Duration(req.ExpiresInSecs)*time.Second, maxTokenTTL)
		}

		token, err := auth.GenerateJWT(caller, ttl)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"caller":     caller.Hex(),
			"expires_in": int(ttl.Seconds()),
		})
	}
}

// StatusHandler returns dev mode status
// GET /api/v1/dev/status
func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"dev_mode": auth.IsDevMode(),
		})
	}
}
