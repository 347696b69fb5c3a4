// Package bot answers Telegram updates: registration, daily check-in, balance and the Mini App entry.
package bot

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/cppla/empire/models"
	"github.com/cppla/empire/services"
)

const (
	buttonCheckIn = "✅ Check in"
	buttonPoints  = "💰 My points"
	buttonProfile = "🏛️ My profile"

	// SecretHeader is set by Telegram on webhook calls when a secret token was registered.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Sender is the part of *tgbotapi.BotAPI the handler needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Handler turns updates into service calls and replies.
type Handler struct {
	sender    Sender
	users     *services.UserService
	checkIns  *services.CheckInService
	webAppURL string
	logger    *zap.Logger
}

// NewHandler wires a Handler. A nil logger is replaced by a no-op logger.
func NewHandler(sender Sender, users *services.UserService, checkIns *services.CheckInService, webAppURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sender:    sender,
		users:     users,
		checkIns:  checkIns,
		webAppURL: webAppURL,
		logger:    logger,
	}
}

// HandleUpdate processes one update. Updates without a text message are ignored.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		return h.start(ctx, msg)
	case msg.IsCommand() && msg.Command() == "checkin", msg.Text == buttonCheckIn:
		return h.checkIn(ctx, msg)
	case msg.IsCommand() && msg.Command() == "points", msg.Text == buttonPoints:
		return h.points(ctx, msg)
	case msg.IsCommand() && msg.Command() == "profile", msg.Text == buttonProfile:
		return h.profile(msg)
	default:
		return h.reply(msg.Chat.ID, "Sorry, I don't understand that. Try /checkin, /points or /profile.", nil)
	}
}

func (h *Handler) start(ctx context.Context, msg *tgbotapi.Message) error {
	user, created, err := h.users.Register(ctx, services.RegisterInput{
		TelegramID: msg.From.ID,
		Username:   msg.From.UserName,
		FirstName:  msg.From.FirstName,
		LastName:   msg.From.LastName,
	})
	if errors.Is(err, services.ErrInvalidProfile) {
		// Telegram names may not pass profile validation; register with the id alone.
		user, created, err = h.users.Register(ctx, services.RegisterInput{TelegramID: msg.From.ID})
	}
	if err != nil {
		return h.fail(msg.Chat.ID, "register", err)
	}
	if created {
		h.logger.Info("bot registered user", zap.Int64("telegram_id", msg.From.ID), zap.Uint("user_id", user.ID))
	}

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonCheckIn), tgbotapi.NewKeyboardButton(buttonPoints)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(buttonProfile)),
	)
	keyboard.ResizeKeyboard = true
	return h.reply(msg.Chat.ID, fmt.Sprintf("Welcome to the Empire community, %s!", displayName(user, msg.From)), keyboard)
}

func (h *Handler) checkIn(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := h.lookup(ctx, msg)
	if !ok {
		return err
	}

	res, err := h.checkIns.CheckIn(ctx, user.ID)
	if err != nil {
		return h.fail(msg.Chat.ID, "check-in", err)
	}
	if !res.Success {
		return h.reply(msg.Chat.ID, fmt.Sprintf("You have already checked in today. Current streak: %d days.", res.User.ConsecutiveCheckIns), nil)
	}

	text := fmt.Sprintf("Checked in! +%d points (base %d", res.Rewards.TotalPoints, res.Rewards.BasePoints)
	if res.Rewards.BonusPoints > 0 {
		text += fmt.Sprintf(", streak bonus %d", res.Rewards.BonusPoints)
	}
	text += fmt.Sprintf(").\nStreak: %d days. Balance: %d points.", res.User.ConsecutiveCheckIns, res.User.ReputationPoints)
	return h.reply(msg.Chat.ID, text, nil)
}

func (h *Handler) points(ctx context.Context, msg *tgbotapi.Message) error {
	user, ok, err := h.lookup(ctx, msg)
	if !ok {
		return err
	}

	status, err := h.checkIns.Status(ctx, user.ID)
	if err != nil {
		return h.fail(msg.Chat.ID, "status", err)
	}
	streak := 0
	if status.StreakActive {
		streak = status.ConsecutiveDays
	}
	text := fmt.Sprintf("Balance: %d points\nStreak: %d days", user.ReputationPoints, streak)
	if status.CheckedInToday {
		text += "\nToday's check-in is done."
	} else {
		text += fmt.Sprintf("\nCheck in today for +%d points.", status.NextReward.TotalPoints)
	}
	return h.reply(msg.Chat.ID, text, nil)
}

func (h *Handler) profile(msg *tgbotapi.Message) error {
	if h.webAppURL == "" {
		return h.reply(msg.Chat.ID, "The profile page is not available yet.", nil)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(buttonProfile, h.webAppURL)),
	)
	return h.reply(msg.Chat.ID, "Tap the button below to open your profile.", markup)
}

// lookup resolves the sender. ok=false means a reply was already sent (err is the send result).
func (h *Handler) lookup(ctx context.Context, msg *tgbotapi.Message) (*models.User, bool, error) {
	user, err := h.users.GetByTelegramID(ctx, msg.From.ID)
	if errors.Is(err, services.ErrUserNotFound) {
		return nil, false, h.reply(msg.Chat.ID, "Please send /start first to join the community.", nil)
	}
	if err != nil {
		return nil, false, h.fail(msg.Chat.ID, "lookup", err)
	}
	return user, true, nil
}

func (h *Handler) fail(chatID int64, op string, err error) error {
	h.logger.Error("bot operation failed", zap.String("op", op), zap.Int64("chat_id", chatID), zap.Error(err))
	if sendErr := h.reply(chatID, "Something went wrong, please try again later.", nil); sendErr != nil {
		h.logger.Warn("bot reply failed", zap.Error(sendErr))
	}
	return err
}

func (h *Handler) reply(chatID int64, text string, markup interface{}) error {
	out := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		out.ReplyMarkup = markup
	}
	_, err := h.sender.Send(out)
	return err
}

// Webhook is the gin endpoint Telegram posts updates to. A non-empty secret must match the secret header.
// Telegram always gets 200 for well-formed updates so it does not redeliver them.
func (h *Handler) Webhook(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(ctx.GetHeader(SecretHeader)), []byte(secret)) != 1 {
			ctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		var update tgbotapi.Update
		if err := ctx.ShouldBindJSON(&update); err != nil {
			ctx.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if err := h.HandleUpdate(ctx.Request.Context(), update); err != nil {
			h.logger.Warn("webhook update failed", zap.Int("update_id", update.UpdateID), zap.Error(err))
		}
		ctx.Status(http.StatusOK)
	}
}

// Poll consumes long-polling updates until ctx is done.
func (h *Handler) Poll(ctx context.Context, api *tgbotapi.BotAPI) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := api.GetUpdatesChan(cfg)
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return
		case update := <-updates:
			if err := h.HandleUpdate(ctx, update); err != nil {
				h.logger.Warn("polled update failed", zap.Int("update_id", update.UpdateID), zap.Error(err))
			}
		}
	}
}

// Setup publishes the command menu and, when webhookURL is set, registers the webhook.
func Setup(api *tgbotapi.BotAPI, webhookURL, secret string) error {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Join the community"},
		tgbotapi.BotCommand{Command: "checkin", Description: "Daily check-in"},
		tgbotapi.BotCommand{Command: "points", Description: "Show balance and streak"},
		tgbotapi.BotCommand{Command: "profile", Description: "Open your profile"},
	)
	if _, err := api.Request(commands); err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}

	if webhookURL == "" {
		if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
		return nil
	}
	params := tgbotapi.Params{"url": webhookURL}
	params.AddNonEmpty("secret_token", secret)
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

func displayName(user *models.User, from *tgbotapi.User) string {
	if name := user.DisplayName(); name != "" {
		return name
	}
	if from.FirstName != "" {
		return from.FirstName
	}
	return "member"
}
