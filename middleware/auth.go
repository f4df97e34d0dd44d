package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/arenabot/cache"
	"github.com/kasuganosora/arenabot/config"
)

const (
	HostClaimsKey  = "host_claims"
	AdminKeyHeader = "X-Admin-Key"
)

// RevokedKey is the cache key marking a token ID as revoked.
func RevokedKey(tokenID string) string { return "arenabot:revoked:" + tokenID }

// HostAuth validates the Bearer host token. Tokens whose ID is marked in
// the revocation cache are refused; c may be nil to skip that check.
func HostAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), sec.HostSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if c != nil {
			cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			defer cancel()
			_, err := c.Get(cacheCtx, RevokedKey(claims.ID))
			if err == nil {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
			if !cache.IsNotFound(err) {
				ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token check failed"})
				return
			}
		}

		if level := ctx.Param("level"); level != "" && !claims.AllowsLevel(level) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "level not allowed"})
			return
		}
		ctx.Set(HostClaimsKey, claims)
		ctx.Next()
	}
}

// GetHostClaims retrieves the authenticated host from the Gin context.
func GetHostClaims(c *gin.Context) *HostClaims {
	if v, exists := c.Get(HostClaimsKey); exists {
		return v.(*HostClaims)
	}
	return nil
}

// AdminAuth requires the configured admin key in the X-Admin-Key header.
// An empty key disables the admin API.
func AdminAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin api disabled"})
			return
		}
		got := c.GetHeader(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}
