package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/empire/models"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUserKey stores the authenticated *models.User inside Gin context.
	ContextUserKey = "user"
	// ContextTokenIDKey stores the jti of the bearer token, when one was used.
	ContextTokenIDKey = "token_id"
	// ContextTokenExpiryKey stores the bearer token expiry, when one was used.
	ContextTokenExpiryKey = "token_expiry"

	// TelegramIDHeader authenticates Mini App requests by Telegram user id.
	TelegramIDHeader = "X-Telegram-Id"
)

// UserLookup resolves authenticated identities to user rows.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

type authFailure struct {
	status  int
	code    int
	message string
}

// AuthRequired authenticates the request with a JWT bearer token or the X-Telegram-Id header.
func AuthRequired(users UserLookup) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if fail := authenticate(ctx, users); fail != nil {
			utils.Error(ctx, fail.status, fail.code, fail.message)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// CurrentUser returns the user stored by AuthRequired.
func CurrentUser(ctx *gin.Context) (*models.User, bool) {
	v, ok := ctx.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func authenticate(ctx *gin.Context, users UserLookup) *authFailure {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		return authenticateBearer(ctx, users, authHeader)
	}
	if raw := strings.TrimSpace(ctx.GetHeader(TelegramIDHeader)); raw != "" {
		telegramID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || telegramID <= 0 {
			return &authFailure{http.StatusUnauthorized, 40106, "invalid telegram id"}
		}
		user, err := users.GetByTelegramID(ctx.Request.Context(), telegramID)
		return setUser(ctx, user, err)
	}
	return &authFailure{http.StatusUnauthorized, 40101, "authorization header missing"}
}

func authenticateBearer(ctx *gin.Context, users UserLookup, authHeader string) *authFailure {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return &authFailure{http.StatusUnauthorized, 40102, "invalid authorization header format"}
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return &authFailure{http.StatusUnauthorized, 40103, "empty bearer token"}
	}

	claims, err := utils.ParseToken(tokenString)
	if err != nil {
		return &authFailure{http.StatusUnauthorized, 40105, "invalid token"}
	}
	if claims.ID != "" && utils.IsTokenBlacklisted(claims.ID) {
		return &authFailure{http.StatusUnauthorized, 40104, "token revoked"}
	}

	ctx.Set(ContextTokenIDKey, claims.ID)
	if claims.ExpiresAt != nil {
		ctx.Set(ContextTokenExpiryKey, claims.ExpiresAt.Time)
	}
	user, err := users.GetByID(ctx.Request.Context(), claims.UserID)
	return setUser(ctx, user, err)
}

func setUser(ctx *gin.Context, user *models.User, err error) *authFailure {
	if errors.Is(err, services.ErrUserNotFound) {
		return &authFailure{http.StatusUnauthorized, 40107, "user not registered"}
	}
	if err != nil {
		utils.Logger.Error("auth user lookup failed", zap.Error(err))
		return &authFailure{http.StatusInternalServerError, 50001, "failed to load user"}
	}
	ctx.Set(ContextUserIDKey, user.ID)
	ctx.Set(ContextUserKey, user)
	return nil
}
