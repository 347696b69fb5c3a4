package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cppla/empire/bot"
	"github.com/cppla/empire/config"
	"github.com/cppla/empire/jobs"
	"github.com/cppla/empire/models"
	"github.com/cppla/empire/routes"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)

	calendar := services.NewCalendar(cfg.Location(), nil)
	reputation := services.NewReputationService(db, utils.Logger.Named("reputation"))
	reputation.OnChange(utils.InvalidateUserStats)
	policy := services.NewRewardPolicy(cfg.CheckInBasePoints, cfg.CheckInTiers)
	checkIns := services.NewCheckInService(db, reputation, policy, calendar, utils.Logger.Named("checkin"))
	users := services.NewUserService(db, utils.Logger.Named("users"), cfg.IsAdminTelegramID)

	deps := routes.Deps{
		DB:         db,
		Users:      users,
		Reputation: reputation,
		CheckIns:   checkIns,
		Calendar:   calendar,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TelegramBotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			utils.Sugar.Fatalf("telegram bot init failed: %v", err)
		}
		handler := bot.NewHandler(api, users, checkIns, cfg.TelegramWebAppURL, utils.Logger.Named("bot"))
		if err := bot.Setup(api, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
			utils.Sugar.Warnf("telegram bot setup failed: %v", err)
		}
		if cfg.TelegramWebhookURL != "" {
			deps.Bot = handler
		} else {
			go handler.Poll(ctx, api)
		}
		utils.Sugar.Infof("telegram bot @%s ready (webhook=%t)", api.Self.UserName, cfg.TelegramWebhookURL != "")
	}

	scheduler := jobs.NewScheduler(calendar.Location(), utils.Logger.Named("jobs"))
	if err := scheduler.Add("stats-rollover", jobs.DayRollover, func() {
		utils.InvalidateByPrefix(utils.CommunityStatsKey)
	}); err != nil {
		utils.Sugar.Fatalf("scheduler: %v", err)
	}
	if err := scheduler.Add("prune-memory-stores", "@hourly", func() {
		if n := utils.PruneMemoryStores(time.Now()); n > 0 {
			utils.Sugar.Infof("pruned %d expired in-memory entries", n)
		}
	}); err != nil {
		utils.Sugar.Fatalf("scheduler: %v", err)
	}
	go scheduler.Run(ctx)
	utils.Sugar.Infof("scheduler started, next run at %s", scheduler.Next().Format(time.RFC3339))

	r := routes.SetupRouter(deps)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(ctx, ":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
