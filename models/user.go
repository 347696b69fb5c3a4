package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a community member identified by their Telegram account.
// Ledger fields are only written by the check-in and reputation services.
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	TelegramID          int64      `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Username            string     `gorm:"size:255" json:"username"`
	FirstName           string     `gorm:"size:255" json:"first_name"`
	LastName            string     `gorm:"size:255" json:"last_name"`
	Bio                 string     `gorm:"size:500" json:"bio"`
	IsAdmin             bool       `gorm:"not null;default:false" json:"is_admin"`
	ReputationPoints    int        `gorm:"not null;default:0" json:"reputation_points"`
	LastCheckInDate     *time.Time `gorm:"type:date" json:"last_check_in_date"`
	ConsecutiveCheckIns int        `gorm:"not null;default:0" json:"consecutive_check_ins"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// DisplayName prefers the full name, then the handle.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}
