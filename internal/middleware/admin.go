package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware guards the operational endpoints. Only a bcrypt hash of
// the admin key is configured; the plaintext key never lives in config.
type AdminMiddleware struct {
	apiKeyHash []byte
}

func NewAdminMiddleware(apiKeyHash string) *AdminMiddleware {
	return &AdminMiddleware{
		apiKeyHash: []byte(apiKeyHash),
	}
}

// RequireAdminAuth accepts the admin key as a Bearer token or in the
// X-API-Key header. With no hash configured, every request gets 503 so a
// half-configured deployment fails loudly instead of open.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(am.apiKeyHash) == 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Admin API is not configured",
			})
			c.Abort()
			return
		}

		if key := bearerToken(c.GetHeader("Authorization")); key != "" && am.ValidateAdminKey(key) {
			c.Next()
			return
		}
		if key := c.GetHeader("X-API-Key"); key != "" && am.ValidateAdminKey(key) {
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key required for this endpoint",
		})
		c.Abort()
	}
}

// ValidateAdminKey compares a candidate key against the configured hash.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	return bcrypt.CompareHashAndPassword(am.apiKeyHash, []byte(key)) == nil
}

func bearerToken(authHeader string) string {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
