package models

import "time"

// SourceType tags where a reputation change came from.
type SourceType string

const (
	SourceCheckIn  SourceType = "check_in"
	SourceContent  SourceType = "content"
	SourceLike     SourceType = "like"
	SourceAdmin    SourceType = "admin"
	SourceSystem   SourceType = "system"
	SourceTask     SourceType = "task"
	SourceExchange SourceType = "exchange"
)

// SourceTypes lists every accepted source type.
var SourceTypes = []SourceType{
	SourceCheckIn,
	SourceContent,
	SourceLike,
	SourceAdmin,
	SourceSystem,
	SourceTask,
	SourceExchange,
}

// Valid reports whether s is one of SourceTypes.
func (s SourceType) Valid() bool {
	for _, v := range SourceTypes {
		if v == s {
			return true
		}
	}
	return false
}

// ReputationLog is one append-only entry of the points ledger.
// Balance is the user's reputation_points right after PointsChange was applied.
type ReputationLog struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index:idx_reputation_logs_user_created,priority:1" json:"user_id"`
	PointsChange int        `gorm:"not null" json:"points_change"`
	Balance      int        `gorm:"not null" json:"balance"`
	Reason       string     `gorm:"type:text" json:"reason"`
	SourceType   SourceType `gorm:"size:16;not null;index" json:"source_type"`
	SourceID     *uint      `json:"source_id"`
	CreatedAt    time.Time  `gorm:"index:idx_reputation_logs_user_created,priority:2" json:"created_at"`
}

func (ReputationLog) TableName() string {
	return "reputation_logs"
}

// All returns every model owned by the service, in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &CheckIn{}, &ReputationLog{}}
}
