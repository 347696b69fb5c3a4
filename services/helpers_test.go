package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/models"
)

// testClock is a settable clock for Calendar.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) AddDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

type testEnv struct {
	db         *gorm.DB
	clock      *testClock
	users      *UserService
	reputation *ReputationService
	checkIns   *CheckInService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.OpenDatabase(config.AppConfig{
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "empire.db"),
		LogLevel:   "silent",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	clock := newTestClock(time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC))
	reputation := NewReputationService(db, nil)
	policy := NewRewardPolicy(5, []config.BonusTier{{MinStreak: 3, BonusPoints: 2}, {MinStreak: 7, BonusPoints: 5}})
	return &testEnv{
		db:         db,
		clock:      clock,
		users:      NewUserService(db, nil, func(id int64) bool { return id == 1 }),
		reputation: reputation,
		checkIns:   NewCheckInService(db, reputation, policy, NewCalendar(time.UTC, clock.Now), nil),
	}
}

func (e *testEnv) createUser(t *testing.T, telegramID int64) *models.User {
	t.Helper()
	user, created, err := e.users.Register(context.Background(), RegisterInput{TelegramID: telegramID, Username: "member"})
	require.NoError(t, err)
	require.True(t, created)
	return user
}

func (e *testEnv) reload(t *testing.T, id uint) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, e.db.First(&user, id).Error)
	return &user
}

func (e *testEnv) countLogs(t *testing.T, userID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.ReputationLog{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
