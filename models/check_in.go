package models

import "time"

// CheckIn is the immutable record of one daily check-in.
type CheckIn struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index;uniqueIndex:idx_check_ins_user_date,priority:1" json:"user_id"`
	CheckInDate      time.Time `gorm:"type:date;not null;uniqueIndex:idx_check_ins_user_date,priority:2" json:"check_in_date"`
	ReputationEarned int       `gorm:"not null" json:"reputation_earned"`
	IsConsecutive    bool      `gorm:"not null;default:false" json:"is_consecutive"`
	ConsecutiveDays  int       `gorm:"not null" json:"consecutive_days"`
	CreatedAt        time.Time `json:"created_at"`
}

func (CheckIn) TableName() string {
	return "check_ins"
}
