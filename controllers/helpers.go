package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/empire/middleware"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

const maxPageLimit = 100

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}

// pagination reads limit (1..100) and page (>=1) and returns limit and offset.
func pagination(ctx *gin.Context, defaultLimit int) (int, int, bool) {
	limit, page := defaultLimit, 1
	if raw := ctx.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPageLimit {
			utils.Error(ctx, http.StatusBadRequest, 40001, "limit must be between 1 and 100")
			return 0, 0, false
		}
		limit = v
	}
	if raw := ctx.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			utils.Error(ctx, http.StatusBadRequest, 40002, "page must be a positive integer")
			return 0, 0, false
		}
		page = v
	}
	return limit, (page - 1) * limit, true
}

// respondServiceError maps service errors to HTTP statuses. Unknown errors are logged and reported as 500 with fallback.
func respondServiceError(ctx *gin.Context, err error, code int, fallback string) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidSourceType),
		errors.Is(err, services.ErrInvalidProfile):
		utils.Error(ctx, http.StatusBadRequest, 40003, err.Error())
	default:
		utils.Logger.Error(fallback,
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", ctx.GetString(utils.RequestIDKey)),
			zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, code, fallback)
	}
}
