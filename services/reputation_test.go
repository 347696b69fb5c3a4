package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/empire/models"
)

func TestCreditAndDebit(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, 100)
	ctx := context.Background()

	res, err := env.reputation.Credit(ctx, user.ID, 30, "welcome", models.SourceSystem, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 30, res.PointsChange)
	assert.Equal(t, 30, res.NewBalance)

	res, err = env.reputation.Debit(ctx, user.ID, 12, "shop", models.SourceExchange, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, -12, res.PointsChange)
	assert.Equal(t, 18, res.NewBalance)
	assert.Equal(t, 18, res.User.ReputationPoints)

	assert.Equal(t, 18, env.reload(t, user.ID).ReputationPoints)
	assert.EqualValues(t, 2, env.countLogs(t, user.ID))
}

func TestDebitBeyondBalanceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, 100)
	ctx := context.Background()

	_, err := env.reputation.Credit(ctx, user.ID, 50, "seed", models.SourceAdmin, nil)
	require.NoError(t, err)

	res, err := env.reputation.Debit(ctx, user.ID, 1000, "penalty", models.SourceAdmin, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, MsgInsufficientBalance, res.Message)
	assert.Equal(t, 50, res.NewBalance)

	assert.Equal(t, 50, env.reload(t, user.ID).ReputationPoints)
	assert.EqualValues(t, 1, env.countLogs(t, user.ID))

	// draining to exactly zero is allowed
	res, err = env.reputation.Debit(ctx, user.ID, 50, "penalty", models.SourceAdmin, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.NewBalance)
}

func TestReputationRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, 100)
	ctx := context.Background()

	for _, points := range []int{0, -5} {
		_, err := env.reputation.Credit(ctx, user.ID, points, "x", models.SourceAdmin, nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = env.reputation.Debit(ctx, user.ID, points, "x", models.SourceAdmin, nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}

	_, err := env.reputation.Credit(ctx, user.ID, 5, "x", models.SourceType("bonus"), nil)
	assert.ErrorIs(t, err, ErrInvalidSourceType)

	_, err = env.reputation.Credit(ctx, 9999, 5, "x", models.SourceAdmin, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.Zero(t, env.countLogs(t, user.ID))
}

func TestLedgerBalancesMatchUserBalance(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, 100)
	ctx := context.Background()

	ops := []int{10, -3, 25, -32, 7, -1000, 4}
	for _, delta := range ops {
		var err error
		if delta > 0 {
			_, err = env.reputation.Credit(ctx, user.ID, delta, "op", models.SourceTask, nil)
		} else {
			_, err = env.reputation.Debit(ctx, user.ID, -delta, "op", models.SourceTask, nil)
		}
		require.NoError(t, err)
	}
	_, err := env.checkIns.CheckIn(ctx, user.ID)
	require.NoError(t, err)

	var logs []models.ReputationLog
	require.NoError(t, env.db.Where("user_id = ?", user.ID).Order("id").Find(&logs).Error)

	running := 0
	for _, entry := range logs {
		assert.NotZero(t, entry.PointsChange)
		running += entry.PointsChange
		assert.GreaterOrEqual(t, running, 0)
		assert.Equal(t, running, entry.Balance)
	}
	assert.Equal(t, running, env.reload(t, user.ID).ReputationPoints)
	assert.Equal(t, 10-3+25-32+7+4+5, running)
}

func TestConcurrentChangesSerialize(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, 100)
	ctx := context.Background()

	_, err := env.reputation.Credit(ctx, user.ID, 5, "seed", models.SourceSystem, nil)
	require.NoError(t, err)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var res *PointsResult
			var err error
			if i%2 == 0 {
				res, err = env.reputation.Credit(ctx, user.ID, 1, "like", models.SourceLike, nil)
			} else {
				res, err = env.reputation.Debit(ctx, user.ID, 2, "spend", models.SourceExchange, nil)
			}
			if assert.NoError(t, err) && res.Success {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	stored := env.reload(t, user.ID)
	assert.GreaterOrEqual(t, stored.ReputationPoints, 0)
	assert.EqualValues(t, succeeded+1, env.countLogs(t, user.ID))

	var sum int64
	require.NoError(t, env.db.Model(&models.ReputationLog{}).
		Where("user_id = ?", user.ID).
		Select("COALESCE(SUM(points_change), 0)").
		Scan(&sum).Error)
	assert.EqualValues(t, stored.ReputationPoints, sum)
}

func TestReputationHistoryAndStats(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, 100)
	ctx := context.Background()

	_, err := env.checkIns.CheckIn(ctx, user.ID)
	require.NoError(t, err)
	_, err = env.reputation.Credit(ctx, user.ID, 20, "post", models.SourceContent, nil)
	require.NoError(t, err)
	_, err = env.reputation.Credit(ctx, user.ID, 3, "like", models.SourceLike, nil)
	require.NoError(t, err)
	_, err = env.reputation.Debit(ctx, user.ID, 8, "sticker", models.SourceExchange, nil)
	require.NoError(t, err)

	history, err := env.reputation.History(ctx, user.ID, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, history.Total)
	require.Len(t, history.Records, 2)
	assert.Equal(t, -8, history.Records[0].PointsChange)
	assert.Equal(t, 3, history.Records[1].PointsChange)

	rest, err := env.reputation.History(ctx, user.ID, 20, 2)
	require.NoError(t, err)
	require.Len(t, rest.Records, 2)
	assert.Equal(t, models.SourceCheckIn, rest.Records[1].SourceType)

	stats, err := env.reputation.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.CurrentPoints)
	assert.EqualValues(t, 28, stats.TotalIncome)
	assert.EqualValues(t, 8, stats.TotalExpense)
	assert.EqualValues(t, 5, stats.IncomeBySource[models.SourceCheckIn])
	assert.EqualValues(t, 20, stats.IncomeBySource[models.SourceContent])
	assert.EqualValues(t, 3, stats.IncomeBySource[models.SourceLike])
	assert.EqualValues(t, 8, stats.ExpenseBySource[models.SourceExchange])

	_, err = env.reputation.Stats(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestOnChangeFiresAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, 100)
	ctx := context.Background()

	var notified []uint
	env.reputation.OnChange(func(id uint) { notified = append(notified, id) })

	_, err := env.reputation.Credit(ctx, user.ID, 4, "x", models.SourceSystem, nil)
	require.NoError(t, err)
	_, err = env.reputation.Debit(ctx, user.ID, 100, "x", models.SourceSystem, nil)
	require.NoError(t, err)
	_, err = env.checkIns.CheckIn(ctx, user.ID)
	require.NoError(t, err)
	_, err = env.checkIns.CheckIn(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, []uint{user.ID, user.ID}, notified)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestDebitLocksRowAndRollsBackOnInsufficientBalance(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewReputationService(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE `users`.`id` = \\? .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "telegram_id", "reputation_points"}).AddRow(7, 100, 50))
	mock.ExpectRollback()

	res, err := svc.Debit(context.Background(), 7, 1000, "penalty", models.SourceAdmin, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 50, res.NewBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditRollsBackWhenLedgerInsertFails(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewReputationService(db, nil)
	dbErr := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `users` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "telegram_id", "reputation_points"}).AddRow(7, 100, 10))
	mock.ExpectExec("UPDATE `users` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `reputation_logs`").WillReturnError(dbErr)
	mock.ExpectRollback()

	res, err := svc.Credit(context.Background(), 7, 5, "like", models.SourceLike, nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
