package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/models"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

// StatsController provides community statistics.
type StatsController struct {
	db       *gorm.DB
	calendar services.Calendar
}

// CommunityStats are the public totals of the community.
type CommunityStats struct {
	UserCount        int64 `json:"user_count"`
	CheckInsToday    int64 `json:"check_ins_today"`
	PointsIssued     int64 `json:"points_issued"`
	PointsSpent      int64 `json:"points_spent"`
	LongestStreakNow int   `json:"longest_streak_now"`
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, calendar services.Calendar) *StatsController {
	return &StatsController{db: db, calendar: calendar}
}

// GetStats returns aggregate statistics for the community.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var stats CommunityStats
	if utils.CacheGetJSON(utils.CommunityStatsKey, &stats) {
		utils.Success(ctx, stats)
		return
	}

	db := s.db.WithContext(ctx.Request.Context())
	today := s.calendar.Today()
	yesterday := today.AddDate(0, 0, -1)

	err := db.Model(&models.User{}).Count(&stats.UserCount).Error
	if err == nil {
		err = db.Model(&models.CheckIn{}).
			Where("check_in_date >= ? AND check_in_date < ?", today, today.AddDate(0, 0, 1)).
			Count(&stats.CheckInsToday).Error
	}
	if err == nil {
		err = db.Model(&models.ReputationLog{}).
			Where("points_change > 0").
			Select("COALESCE(SUM(points_change), 0)").
			Scan(&stats.PointsIssued).Error
	}
	if err == nil {
		err = db.Model(&models.ReputationLog{}).
			Where("points_change < 0").
			Select("COALESCE(SUM(-points_change), 0)").
			Scan(&stats.PointsSpent).Error
	}
	if err == nil {
		// streaks still alive: checked in today or yesterday
		err = db.Model(&models.User{}).
			Where("last_check_in_date >= ?", yesterday).
			Select("COALESCE(MAX(consecutive_check_ins), 0)").
			Scan(&stats.LongestStreakNow).Error
	}
	if err != nil {
		respondServiceError(ctx, err, 50050, "failed to load stats")
		return
	}

	utils.CacheSetJSON(utils.CommunityStatsKey, stats, config.Get().StatsCacheTTL)
	utils.Success(ctx, stats)
}

// Health reports database reachability.
func (s *StatsController) Health(ctx *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx.Request.Context())
	}
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50300, "database unavailable")
		return
	}
	utils.Success(ctx, gin.H{"status": "ok"})
}
