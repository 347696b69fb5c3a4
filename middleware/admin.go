package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/utils"
)

// AdminKeyHeader carries the operator API key checked against AdminAPIKeyHash.
const AdminKeyHeader = "X-Admin-Key"

// AdminRequired admits requests with a valid admin API key, or a bearer token of an admin user.
func AdminRequired(users UserLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if key := ctx.GetHeader(AdminKeyHeader); key != "" {
			if utils.CheckAdminKey(config.Get().AdminAPIKeyHash, key) {
				ctx.Next()
				return
			}
			utils.Error(ctx, http.StatusForbidden, 40302, "invalid admin key")
			ctx.Abort()
			return
		}

		// the X-Telegram-Id header is unverified and never grants admin rights
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "admin routes require a bearer token or admin key")
			ctx.Abort()
			return
		}
		if fail := authenticateBearer(ctx, users, authHeader); fail != nil {
			utils.Error(ctx, fail.status, fail.code, fail.message)
			ctx.Abort()
			return
		}
		user, _ := CurrentUser(ctx)
		if !user.IsAdmin {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin privileges required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
