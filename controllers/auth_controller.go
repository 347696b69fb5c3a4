package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/middleware"
	"github.com/cppla/empire/models"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

const (
	tokenTTL         = 72 * time.Hour
	telegramLoginTTL = 5 * time.Minute
)

// AuthController handles registration, Telegram login and the caller's profile.
type AuthController struct {
	users *services.UserService
}

type telegramLoginRequest struct {
	ID        string `json:"id" binding:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date" binding:"required"`
	Hash      string `json:"hash" binding:"required"`
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(users *services.UserService) *AuthController {
	return &AuthController{users: users}
}

// Register creates the member for a Telegram id. Registering again returns the existing member.
// No token is issued here: the Telegram id is unverified, tokens come from TelegramLogin.
func (a *AuthController) Register(ctx *gin.Context) {
	var req services.RegisterInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	if !utils.RegistrationAllowed(ctx.ClientIP()) {
		utils.Error(ctx, http.StatusTooManyRequests, 42902, "too many registrations from this address")
		return
	}

	user, created, err := a.users.Register(ctx.Request.Context(), req)
	if err != nil {
		respondServiceError(ctx, err, 50010, "failed to register user")
		return
	}
	if created {
		utils.RecordRegistration(ctx.ClientIP())
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.Respond(ctx, status, 0, "success", gin.H{"created": created, "user": userResponse(user)})
}

// TelegramLogin handles authentication via Telegram login widget.
func (a *AuthController) TelegramLogin(ctx *gin.Context) {
	var req telegramLoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40008, "invalid request payload")
		return
	}

	cfg := config.Get()
	if !verifyTelegramSignature(cfg.TelegramBotToken, req) {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "invalid telegram signature")
		return
	}

	authTime := time.Unix(req.AuthDate, 0)
	if time.Since(authTime) > telegramLoginTTL {
		utils.Error(ctx, http.StatusUnauthorized, 40109, "telegram login expired")
		return
	}
	if !utils.ClaimLoginHash(req.Hash, telegramLoginTTL) {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "telegram login already used")
		return
	}

	telegramID, err := strconv.ParseInt(req.ID, 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40009, "invalid telegram id")
		return
	}

	user, _, err := a.users.Register(ctx.Request.Context(), services.RegisterInput{
		TelegramID: telegramID,
		Username:   req.Username,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	})
	if err != nil {
		respondServiceError(ctx, err, 50006, "failed to persist user")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.TelegramID, tokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{"token": token, "user": userResponse(user)})
}

// Logout revokes the bearer token until it expires.
func (a *AuthController) Logout(ctx *gin.Context) {
	tokenID := ctx.GetString(middleware.ContextTokenIDKey)
	if tokenID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40011, "logout requires a bearer token")
		return
	}

	expiresAt := time.Now().Add(tokenTTL)
	if v, ok := ctx.Get(middleware.ContextTokenExpiryKey); ok {
		if t, ok := v.(time.Time); ok {
			expiresAt = t
		}
	}

	utils.BlacklistToken(tokenID, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	utils.Success(ctx, userResponse(user))
}

// UpdateProfile allows the authenticated user to update profile fields.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req services.ProfileInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	user, err := a.users.UpdateProfile(ctx.Request.Context(), userID, req)
	if err != nil {
		respondServiceError(ctx, err, 50031, "failed to update profile")
		return
	}
	utils.Success(ctx, userResponse(user))
}

func verifyTelegramSignature(botToken string, req telegramLoginRequest) bool {
	if botToken == "" {
		return false
	}

	values := map[string]string{
		"auth_date": fmt.Sprintf("%d", req.AuthDate),
		"id":        req.ID,
	}
	if req.Username != "" {
		values["username"] = req.Username
	}
	if req.FirstName != "" {
		values["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		values["last_name"] = req.LastName
	}
	if req.PhotoURL != "" {
		values["photo_url"] = req.PhotoURL
	}

	pairs := make([]string, 0, len(values))
	for k, v := range values {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(pairs)

	digest := sha256.Sum256([]byte(botToken))
	h := hmac.New(sha256.New, digest[:])
	h.Write([]byte(strings.Join(pairs, "\n")))
	expected := h.Sum(nil)
	provided, err := hex.DecodeString(strings.TrimSpace(req.Hash))
	if err != nil || len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, provided) == 1
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":                    user.ID,
		"telegram_id":           user.TelegramID,
		"username":              user.Username,
		"first_name":            user.FirstName,
		"last_name":             user.LastName,
		"display_name":          user.DisplayName(),
		"bio":                   user.Bio,
		"is_admin":              user.IsAdmin,
		"reputation_points":     user.ReputationPoints,
		"consecutive_check_ins": user.ConsecutiveCheckIns,
		"last_check_in_date":    user.LastCheckInDate,
		"created_at":            user.CreatedAt,
	}
}
