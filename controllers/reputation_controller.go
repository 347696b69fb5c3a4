package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/models"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

const defaultReputationPageSize = 20

// ReputationController exposes the points ledger.
type ReputationController struct {
	reputation *services.ReputationService
}

// NewReputationController creates a new controller instance.
func NewReputationController(reputation *services.ReputationService) *ReputationController {
	return &ReputationController{reputation: reputation}
}

type adjustRequest struct {
	UserID   uint   `json:"user_id" binding:"required"`
	Points   int    `json:"points" binding:"required"`
	Reason   string `json:"reason"`
	SourceID *uint  `json:"source_id"`
}

// History lists the caller's ledger entries, newest first.
func (c *ReputationController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	limit, offset, ok := pagination(ctx, defaultReputationPageSize)
	if !ok {
		return
	}

	history, err := c.reputation.History(ctx.Request.Context(), userID, limit, offset)
	if err != nil {
		respondServiceError(ctx, err, 50040, "failed to load reputation history")
		return
	}
	utils.Success(ctx, history)
}

// Stats aggregates the caller's ledger, cached until the next ledger change.
func (c *ReputationController) Stats(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	key := utils.UserStatsKey(userID, "reputation")
	var cached services.ReputationStats
	if utils.CacheGetJSON(key, &cached) {
		utils.Success(ctx, cached)
		return
	}

	stats, err := c.reputation.Stats(ctx.Request.Context(), userID)
	if err != nil {
		respondServiceError(ctx, err, 50041, "failed to load reputation stats")
		return
	}
	utils.CacheSetJSON(key, stats, config.Get().StatsCacheTTL)
	utils.Success(ctx, stats)
}

// Add credits points to a user on behalf of an admin.
func (c *ReputationController) Add(ctx *gin.Context) {
	c.adjust(ctx, true)
}

// Deduct debits points from a user on behalf of an admin.
func (c *ReputationController) Deduct(ctx *gin.Context) {
	c.adjust(ctx, false)
}

func (c *ReputationController) adjust(ctx *gin.Context, credit bool) {
	var req adjustRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "admin adjustment"
	}

	var (
		res *services.PointsResult
		err error
	)
	if credit {
		res, err = c.reputation.Credit(ctx.Request.Context(), req.UserID, req.Points, reason, models.SourceAdmin, req.SourceID)
	} else {
		res, err = c.reputation.Debit(ctx.Request.Context(), req.UserID, req.Points, reason, models.SourceAdmin, req.SourceID)
	}
	if err != nil {
		respondServiceError(ctx, err, 50042, "failed to update reputation")
		return
	}
	if !res.Success {
		utils.Respond(ctx, http.StatusBadRequest, 40041, res.Message, res)
		return
	}
	utils.Success(ctx, res)
}
