package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imglink/imglink/config"
)

// CronAuth guards the scheduler-invoked endpoints with a shared bearer
// secret. Unauthorized calls are rejected before any database or storage
// operation runs. The response shape matches what external schedulers and
// their dashboards expect, not the API envelope.
func CronAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		expected := "Bearer " + config.Get().CronSecret
		got := ctx.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx.Next()
	}
}
