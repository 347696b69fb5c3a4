package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/metrics"
	"github.com/cppla/empire/models"
)

// RewardPolicy decides how many points a check-in earns.
// The first tier (highest MinStreak first) whose MinStreak the streak reaches grants its bonus.
type RewardPolicy struct {
	BasePoints int                `json:"base_points"`
	Tiers      []config.BonusTier `json:"tiers"`
}

// NewRewardPolicy copies tiers and sorts them by descending MinStreak.
func NewRewardPolicy(base int, tiers []config.BonusTier) RewardPolicy {
	sorted := make([]config.BonusTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinStreak > sorted[j].MinStreak })
	return RewardPolicy{BasePoints: base, Tiers: sorted}
}

// Bonus returns the streak bonus for a streak of the given length.
func (p RewardPolicy) Bonus(streak int) int {
	for _, tier := range p.Tiers {
		if streak >= tier.MinStreak {
			return tier.BonusPoints
		}
	}
	return 0
}

// Rewards breaks down the points of one check-in.
type Rewards struct {
	BasePoints  int `json:"base_points"`
	BonusPoints int `json:"bonus_points"`
	TotalPoints int `json:"total_points"`
}

// CheckInResult is the outcome of a check-in. Success=false means already checked in today.
type CheckInResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Rewards *Rewards        `json:"rewards,omitempty"`
	Record  *models.CheckIn `json:"record,omitempty"`
	User    *models.User    `json:"user"`
}

// CheckInStatus is a read-only snapshot of a user's streak.
type CheckInStatus struct {
	ConsecutiveDays int        `json:"consecutive_days"`
	LastCheckInDate *time.Time `json:"last_check_in_date"`
	CheckedInToday  bool       `json:"checked_in_today"`
	StreakActive    bool       `json:"streak_active"`
	NextReward      Rewards    `json:"next_reward"`
}

// CheckInHistory is one page of check-in records, newest date first.
type CheckInHistory struct {
	Records []models.CheckIn `json:"records"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// CheckInStats summarizes a user's check-ins.
type CheckInStats struct {
	TotalDays   int64 `json:"total_days"`
	TotalPoints int64 `json:"total_points"`
	MonthDays   int64 `json:"month_days"`
}

// CheckInService enforces one check-in per user per calendar day and pays the streak reward
// through ReputationService inside the same transaction.
type CheckInService struct {
	db         *gorm.DB
	reputation *ReputationService
	policy     RewardPolicy
	calendar   Calendar
	logger     *zap.Logger
}

// NewCheckInService wires a CheckInService. A nil logger is replaced by a no-op logger.
func NewCheckInService(db *gorm.DB, reputation *ReputationService, policy RewardPolicy, calendar Calendar, logger *zap.Logger) *CheckInService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckInService{db: db, reputation: reputation, policy: policy, calendar: calendar, logger: logger}
}

// Policy returns the active reward policy.
func (s *CheckInService) Policy() RewardPolicy {
	return s.policy
}

// CheckIn records today's check-in for userID, extends or restarts the streak and credits the reward.
func (s *CheckInService) CheckIn(ctx context.Context, userID uint) (*CheckInResult, error) {
	today := s.calendar.Today()
	yesterday := today.AddDate(0, 0, -1)

	var result *CheckInResult
	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		if user.LastCheckInDate != nil && SameDate(*user.LastCheckInDate, today) {
			result = &CheckInResult{Success: false, Message: MsgAlreadyCheckedIn, User: user}
			return nil
		}
		var existing int64
		if err := tx.Model(&models.CheckIn{}).
			Where("user_id = ? AND check_in_date >= ? AND check_in_date < ?", userID, today, today.AddDate(0, 0, 1)).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("find today's check-in: %w", err)
		}
		if existing > 0 {
			result = &CheckInResult{Success: false, Message: MsgAlreadyCheckedIn, User: user}
			return nil
		}

		isConsecutive := user.LastCheckInDate != nil && SameDate(*user.LastCheckInDate, yesterday)
		consecutiveDays := 1
		if isConsecutive {
			consecutiveDays = user.ConsecutiveCheckIns + 1
		}
		rewards := s.rewardsFor(consecutiveDays)

		record := models.CheckIn{
			UserID:           userID,
			CheckInDate:      today,
			ReputationEarned: rewards.TotalPoints,
			IsConsecutive:    isConsecutive,
			ConsecutiveDays:  consecutiveDays,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("insert check-in: %w", err)
		}

		reason := "daily check-in"
		if isConsecutive {
			reason = fmt.Sprintf("daily check-in (%d-day streak)", consecutiveDays)
		}
		streak := map[string]interface{}{
			"last_check_in_date":    today,
			"consecutive_check_ins": consecutiveDays,
		}
		if _, err := s.reputation.applyInTx(tx, user, rewards.TotalPoints, reason, models.SourceCheckIn, &record.ID, streak); err != nil {
			return err
		}
		user.LastCheckInDate = &today
		user.ConsecutiveCheckIns = consecutiveDays

		result = &CheckInResult{
			Success: true,
			Message: "check-in successful",
			Rewards: &rewards,
			Record:  &record,
			User:    user,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		metrics.RecordCheckIn(metrics.OutcomeError)
		s.logger.Error("check-in failed", zap.Uint("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("check in: %w", err)
	}

	if !result.Success {
		metrics.RecordCheckIn(metrics.OutcomeDuplicate)
		return result, nil
	}

	metrics.RecordCheckIn(metrics.OutcomeSuccess)
	metrics.RecordLedgerChange(models.SourceCheckIn, result.Rewards.TotalPoints, metrics.OutcomeSuccess)
	s.logger.Info("check-in recorded",
		zap.Uint("user_id", userID),
		zap.Time("date", today),
		zap.Int("streak", result.User.ConsecutiveCheckIns),
		zap.Int("points", result.Rewards.TotalPoints))
	s.reputation.notify(userID)
	return result, nil
}

func (s *CheckInService) rewardsFor(streak int) Rewards {
	bonus := s.policy.Bonus(streak)
	return Rewards{
		BasePoints:  s.policy.BasePoints,
		BonusPoints: bonus,
		TotalPoints: s.policy.BasePoints + bonus,
	}
}

// Status reports the streak without changing anything.
func (s *CheckInService) Status(ctx context.Context, userID uint) (*CheckInStatus, error) {
	user, err := findUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}

	today := s.calendar.Today()
	status := &CheckInStatus{
		ConsecutiveDays: user.ConsecutiveCheckIns,
		LastCheckInDate: user.LastCheckInDate,
	}
	next := 1
	if user.LastCheckInDate != nil {
		status.CheckedInToday = SameDate(*user.LastCheckInDate, today)
		continues := SameDate(*user.LastCheckInDate, today.AddDate(0, 0, -1))
		status.StreakActive = status.CheckedInToday || continues
		if continues {
			next = user.ConsecutiveCheckIns + 1
		}
	}
	status.NextReward = s.rewardsFor(next)
	return status, nil
}

// History returns a page of check-in records ordered by date, newest first.
func (s *CheckInService) History(ctx context.Context, userID uint, limit, offset int) (*CheckInHistory, error) {
	db := s.db.WithContext(ctx)
	if _, err := findUser(db, userID); err != nil {
		return nil, err
	}

	history := &CheckInHistory{Records: []models.CheckIn{}, Limit: limit, Offset: offset}
	q := db.Model(&models.CheckIn{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := q.Count(&history.Total).Error; err != nil {
		return nil, fmt.Errorf("count check-ins: %w", err)
	}
	if err := q.Order("check_in_date DESC").Limit(limit).Offset(offset).Find(&history.Records).Error; err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	return history, nil
}

// Stats counts all check-ins, the points they earned and this month's check-ins.
func (s *CheckInService) Stats(ctx context.Context, userID uint) (*CheckInStats, error) {
	db := s.db.WithContext(ctx)
	if _, err := findUser(db, userID); err != nil {
		return nil, err
	}
	stats := &CheckInStats{}

	if err := db.Model(&models.CheckIn{}).Where("user_id = ?", userID).Count(&stats.TotalDays).Error; err != nil {
		return nil, fmt.Errorf("count check-ins: %w", err)
	}
	if err := db.Model(&models.CheckIn{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(reputation_earned), 0)").
		Scan(&stats.TotalPoints).Error; err != nil {
		return nil, fmt.Errorf("sum check-in points: %w", err)
	}
	if err := db.Model(&models.CheckIn{}).
		Where("user_id = ? AND check_in_date >= ?", userID, s.calendar.MonthStart()).
		Count(&stats.MonthDays).Error; err != nil {
		return nil, fmt.Errorf("count month check-ins: %w", err)
	}
	return stats, nil
}
