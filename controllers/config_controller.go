package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

// ConfigController serves public, configuration-driven settings.
type ConfigController struct {
	policy services.RewardPolicy
}

func NewConfigController(policy services.RewardPolicy) *ConfigController {
	return &ConfigController{policy: policy}
}

// GetCheckInPolicy returns the reward rule and the calendar time zone used for check-ins.
func (c *ConfigController) GetCheckInPolicy(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"base_points": c.policy.BasePoints,
		"tiers":       c.policy.Tiers,
		"timezone":    cfg.Location().String(),
		"web_app_url": cfg.TelegramWebAppURL,
	})
}
