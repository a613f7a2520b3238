package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/utils"
)

// AdminRequired restricts a route to usernames listed in AdminUsernames.
// Must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, ok := Username(ctx)
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
			ctx.Abort()
			return
		}

		if !isAdmin(username) {
			utils.Error(ctx, http.StatusForbidden, 40310, "admin access required")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

func isAdmin(username string) bool {
	for _, admin := range config.Get().AdminUsernames {
		if admin == username {
			return true
		}
	}
	return false
}
