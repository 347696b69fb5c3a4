package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/empire/metrics"
	"github.com/cppla/empire/models"
)

// PointsResult is the outcome of a credit or debit. Success=false is a business outcome.
type PointsResult struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	PointsChange int          `json:"points_change"`
	NewBalance   int          `json:"new_balance"`
	User         *models.User `json:"user"`
}

// ReputationHistory is one page of a user's ledger, newest first.
type ReputationHistory struct {
	Records []models.ReputationLog `json:"records"`
	Total   int64                  `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// ReputationStats aggregates a user's ledger.
type ReputationStats struct {
	CurrentPoints   int                         `json:"current_points"`
	TotalIncome     int64                       `json:"total_income"`
	TotalExpense    int64                       `json:"total_expense"`
	IncomeBySource  map[models.SourceType]int64 `json:"income_by_source"`
	ExpenseBySource map[models.SourceType]int64 `json:"expense_by_source"`
}

// ReputationService owns every mutation of users.reputation_points.
// Each mutation locks the user row and appends exactly one reputation_logs entry.
type ReputationService struct {
	db       *gorm.DB
	logger   *zap.Logger
	onChange func(userID uint)
}

// NewReputationService creates a ReputationService. A nil logger is replaced by a no-op logger.
func NewReputationService(db *gorm.DB, logger *zap.Logger) *ReputationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReputationService{db: db, logger: logger}
}

// OnChange registers fn to run after every committed balance change.
func (s *ReputationService) OnChange(fn func(userID uint)) {
	s.onChange = fn
}

// Credit adds points to the user's balance.
func (s *ReputationService) Credit(ctx context.Context, userID uint, points int, reason string, source models.SourceType, sourceID *uint) (*PointsResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.change(ctx, userID, points, reason, source, sourceID)
}

// Debit removes points from the user's balance. A debit that would go below zero
// returns Success=false and writes nothing.
func (s *ReputationService) Debit(ctx context.Context, userID uint, points int, reason string, source models.SourceType, sourceID *uint) (*PointsResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.change(ctx, userID, -points, reason, source, sourceID)
}

func (s *ReputationService) change(ctx context.Context, userID uint, delta int, reason string, source models.SourceType, sourceID *uint) (*PointsResult, error) {
	if !source.Valid() {
		return nil, ErrInvalidSourceType
	}

	var result *PointsResult
	// the transaction is not cancellable once started
	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.ReputationPoints+delta < 0 {
			result = &PointsResult{
				Success:    false,
				Message:    MsgInsufficientBalance,
				NewBalance: user.ReputationPoints,
				User:       user,
			}
			return errInsufficientBalance
		}
		if _, err := s.applyInTx(tx, user, delta, reason, source, sourceID, nil); err != nil {
			return err
		}
		message := "points credited"
		if delta < 0 {
			message = "points debited"
		}
		result = &PointsResult{
			Success:      true,
			Message:      message,
			PointsChange: delta,
			NewBalance:   user.ReputationPoints,
			User:         user,
		}
		return nil
	})

	switch {
	case errors.Is(err, errInsufficientBalance):
		metrics.RecordLedgerChange(source, delta, metrics.OutcomeInsufficient)
		s.logger.Info("reputation debit rejected",
			zap.Uint("user_id", userID), zap.Int("delta", delta), zap.Int("balance", result.NewBalance))
		return result, nil
	case errors.Is(err, ErrUserNotFound):
		return nil, err
	case err != nil:
		metrics.RecordLedgerChange(source, delta, metrics.OutcomeError)
		s.logger.Error("reputation change failed", zap.Uint("user_id", userID), zap.Int("delta", delta), zap.Error(err))
		return nil, fmt.Errorf("update reputation: %w", err)
	}

	metrics.RecordLedgerChange(source, delta, metrics.OutcomeSuccess)
	s.logger.Info("reputation changed",
		zap.Uint("user_id", userID),
		zap.Int("delta", delta),
		zap.Int("balance", result.NewBalance),
		zap.String("source", string(source)))
	s.notify(userID)
	return result, nil
}

// applyInTx writes one user UPDATE and one ledger INSERT inside tx. The caller must hold the
// row lock on user and has already checked the resulting balance. extra adds columns to the
// same UPDATE. On success user reflects the new balance.
func (s *ReputationService) applyInTx(tx *gorm.DB, user *models.User, delta int, reason string, source models.SourceType, sourceID *uint, extra map[string]interface{}) (*models.ReputationLog, error) {
	newBalance := user.ReputationPoints + delta
	if newBalance < 0 {
		return nil, errInsufficientBalance
	}

	updates := map[string]interface{}{"reputation_points": newBalance}
	for k, v := range extra {
		updates[k] = v
	}
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user balance: %w", err)
	}

	entry := models.ReputationLog{
		UserID:       user.ID,
		PointsChange: delta,
		Balance:      newBalance,
		Reason:       reason,
		SourceType:   source,
		SourceID:     sourceID,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("insert reputation log: %w", err)
	}

	user.ReputationPoints = newBalance
	return &entry, nil
}

func (s *ReputationService) notify(userID uint) {
	if s.onChange != nil {
		s.onChange(userID)
	}
}

// History returns a page of the user's ledger ordered newest first.
func (s *ReputationService) History(ctx context.Context, userID uint, limit, offset int) (*ReputationHistory, error) {
	db := s.db.WithContext(ctx)
	if _, err := findUser(db, userID); err != nil {
		return nil, err
	}

	history := &ReputationHistory{Records: []models.ReputationLog{}, Limit: limit, Offset: offset}
	q := db.Model(&models.ReputationLog{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := q.Count(&history.Total).Error; err != nil {
		return nil, fmt.Errorf("count reputation logs: %w", err)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&history.Records).Error; err != nil {
		return nil, fmt.Errorf("list reputation logs: %w", err)
	}
	return history, nil
}

type sourceTotal struct {
	SourceType models.SourceType
	Total      int64
}

// Stats aggregates income and expense, overall and per source type.
func (s *ReputationService) Stats(ctx context.Context, userID uint) (*ReputationStats, error) {
	db := s.db.WithContext(ctx)

	user, err := findUser(db, userID)
	if err != nil {
		return nil, err
	}

	stats := &ReputationStats{
		CurrentPoints:   user.ReputationPoints,
		IncomeBySource:  map[models.SourceType]int64{},
		ExpenseBySource: map[models.SourceType]int64{},
	}

	if err := db.Model(&models.ReputationLog{}).
		Where("user_id = ? AND points_change > 0", userID).
		Select("COALESCE(SUM(points_change), 0)").
		Scan(&stats.TotalIncome).Error; err != nil {
		return nil, fmt.Errorf("sum income: %w", err)
	}
	if err := db.Model(&models.ReputationLog{}).
		Where("user_id = ? AND points_change < 0", userID).
		Select("COALESCE(SUM(-points_change), 0)").
		Scan(&stats.TotalExpense).Error; err != nil {
		return nil, fmt.Errorf("sum expense: %w", err)
	}

	var income, expense []sourceTotal
	if err := db.Model(&models.ReputationLog{}).
		Where("user_id = ? AND points_change > 0", userID).
		Select("source_type, SUM(points_change) AS total").
		Group("source_type").
		Scan(&income).Error; err != nil {
		return nil, fmt.Errorf("group income: %w", err)
	}
	if err := db.Model(&models.ReputationLog{}).
		Where("user_id = ? AND points_change < 0", userID).
		Select("source_type, SUM(-points_change) AS total").
		Group("source_type").
		Scan(&expense).Error; err != nil {
		return nil, fmt.Errorf("group expense: %w", err)
	}
	for _, row := range income {
		stats.IncomeBySource[row.SourceType] = row.Total
	}
	for _, row := range expense {
		stats.ExpenseBySource[row.SourceType] = row.Total
	}

	return stats, nil
}

// lockUser reads the user row with an exclusive lock held until the transaction ends.
func lockUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return &user, nil
}

func findUser(db *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	err := db.First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}
