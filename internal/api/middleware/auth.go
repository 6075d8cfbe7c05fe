package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceSecretHeader carries the shared secret on service-to-service calls.
const ServiceSecretHeader = "X-Service-Secret"

// ServiceAuth rejects requests whose X-Service-Secret does not match secret.
// An empty secret disables the check.
func ServiceAuth(secret string) gin.HandlerFunc {
	want := []byte(secret)

	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(ServiceSecretHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			Abort(c, http.StatusUnauthorized, "unauthorized", "invalid service secret")
			return
		}
		c.Next()
	}
}

// Abort writes the standard error envelope and stops the chain.
func Abort(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"type":    errType,
			"message": message,
		},
	})
}
