package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

const defaultCheckInPageSize = 30

// CheckInController exposes the daily check-in ledger.
type CheckInController struct {
	checkIns *services.CheckInService
}

// NewCheckInController creates a new controller instance.
func NewCheckInController(checkIns *services.CheckInService) *CheckInController {
	return &CheckInController{checkIns: checkIns}
}

// CheckIn records today's check-in. A repeated check-in answers 400 with the current user.
func (c *CheckInController) CheckIn(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	res, err := c.checkIns.CheckIn(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50030, "failed to record check-in")
		return
	}
	if !res.Success {
		utils.Respond(ctx, http.StatusBadRequest, 40030, res.Message, res)
		return
	}
	utils.Success(ctx, res)
}

// Status returns the streak and whether today's check-in is done.
func (c *CheckInController) Status(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	status, err := c.checkIns.Status(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to load check-in status")
		return
	}
	utils.Success(ctx, status)
}

// History lists check-in records, newest first.
func (c *CheckInController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	limit, offset, ok := pagination(ctx, defaultCheckInPageSize)
	if !ok {
		return
	}

	history, err := c.checkIns.History(ctx.Request.Context(), userID, limit, offset)
	if err != nil {
		respondServiceError(ctx, err, 50032, "failed to load check-in history")
		return
	}
	utils.Success(ctx, history)
}

// Stats returns check-in totals, cached per user until the next ledger change.
func (c *CheckInController) Stats(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	key := utils.UserStatsKey(userID, "checkin")
	var cached services.CheckInStats
	if utils.CacheGetJSON(key, &cached) {
		utils.Success(ctx, cached)
		return
	}

	stats, err := c.checkIns.Stats(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50033, "failed to load check-in stats")
		return
	}
	utils.CacheSetJSON(key, stats, config.Get().StatsCacheTTL)
	utils.Success(ctx, stats)
}
