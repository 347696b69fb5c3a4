package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/empire/models"
	"github.com/cppla/empire/utils"
)

const (
	maxNameLength = 255
	maxBioLength  = 500
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// RegisterInput carries the Telegram identity of a new member.
type RegisterInput struct {
	TelegramID int64  `json:"telegram_id" binding:"required,min=1"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// ProfileInput holds optional profile changes. Nil fields are left untouched.
type ProfileInput struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
}

// UserService manages community members. It never touches ledger fields.
type UserService struct {
	db      *gorm.DB
	logger  *zap.Logger
	isAdmin func(telegramID int64) bool
}

// NewUserService creates a UserService. isAdmin decides which Telegram ids are admins on registration.
func NewUserService(db *gorm.DB, logger *zap.Logger, isAdmin func(telegramID int64) bool) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &UserService{db: db, logger: logger, isAdmin: isAdmin}
}

// Register creates the user for a Telegram id, or returns the existing one unchanged.
// created reports whether a row was inserted.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, bool, error) {
	if in.TelegramID <= 0 {
		return nil, false, fmt.Errorf("%w: telegram_id must be positive", ErrInvalidProfile)
	}
	username, first, last := in.Username, in.FirstName, in.LastName
	if err := normalizeName("username", &username, true); err != nil {
		return nil, false, err
	}
	if err := normalizeName("first_name", &first, false); err != nil {
		return nil, false, err
	}
	if err := normalizeName("last_name", &last, false); err != nil {
		return nil, false, err
	}

	user := models.User{
		TelegramID: in.TelegramID,
		Username:   username,
		FirstName:  first,
		LastName:   last,
		IsAdmin:    s.isAdmin(in.TelegramID),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "telegram_id"}}, DoNothing: true}).
		Create(&user)
	if res.Error != nil {
		return nil, false, fmt.Errorf("register user: %w", res.Error)
	}

	existing, err := s.GetByTelegramID(ctx, in.TelegramID)
	if err != nil {
		return nil, false, err
	}
	created := res.RowsAffected > 0
	if created {
		s.logger.Info("user registered", zap.Uint("user_id", existing.ID), zap.Int64("telegram_id", in.TelegramID))
	}
	return existing, created, nil
}

// GetByID loads a user by primary key.
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return findUser(s.db.WithContext(ctx), id)
}

// GetByTelegramID loads a user by Telegram id.
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user by telegram id: %w", err)
	}
	return &user, nil
}

// UpdateProfile validates, sanitizes and stores the provided profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, id uint, in ProfileInput) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.Username != nil {
		v := *in.Username
		if err := normalizeName("username", &v, true); err != nil {
			return nil, err
		}
		updates["username"] = v
	}
	if in.FirstName != nil {
		v := *in.FirstName
		if err := normalizeName("first_name", &v, false); err != nil {
			return nil, err
		}
		updates["first_name"] = v
	}
	if in.LastName != nil {
		v := *in.LastName
		if err := normalizeName("last_name", &v, false); err != nil {
			return nil, err
		}
		updates["last_name"] = v
	}
	if in.Bio != nil {
		v := utils.SanitizeText(*in.Bio)
		if utf8.RuneCountInString(v) > maxBioLength {
			return nil, fmt.Errorf("%w: bio exceeds %d characters", ErrInvalidProfile, maxBioLength)
		}
		updates["bio"] = v
	}

	db := s.db.WithContext(ctx)
	user, err := findUser(db, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := db.Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return findUser(db, id)
}

// normalizeName sanitizes *v in place and checks length and, for usernames, the character set.
func normalizeName(field string, v *string, handle bool) error {
	*v = utils.SanitizeText(*v)
	if *v == "" {
		return nil
	}
	if utf8.RuneCountInString(*v) > maxNameLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidProfile, field, maxNameLength)
	}
	if handle && !usernamePattern.MatchString(*v) {
		return fmt.Errorf("%w: %s may only contain letters, digits and underscores", ErrInvalidProfile, field)
	}
	return nil
}
