package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, created, err := env.users.Register(ctx, RegisterInput{TelegramID: 42, Username: "alice", FirstName: "Alice"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 0, first.ReputationPoints)
	assert.False(t, first.IsAdmin)

	again, created, err := env.users.Register(ctx, RegisterInput{TelegramID: 42, Username: "renamed"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "alice", again.Username)

	var count int64
	require.NoError(t, env.db.Table("users").Where("telegram_id = ?", 42).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRegisterMarksConfiguredAdmins(t *testing.T) {
	env := newTestEnv(t)

	admin, _, err := env.users.Register(context.Background(), RegisterInput{TelegramID: 1, Username: "root"})
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
}

func TestRegisterValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.users.Register(ctx, RegisterInput{TelegramID: 0})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, _, err = env.users.Register(ctx, RegisterInput{TelegramID: 5, Username: "bad name!"})
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLookupUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 77)

	byID, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 77, byID.TelegramID)

	byTG, err := env.users.GetByTelegramID(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byTG.ID)

	_, err = env.users.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = env.users.GetByTelegramID(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, 77)

	bio := `<script>alert(1)</script>Likes <b>Go</b>`
	first := "Bob"
	updated, err := env.users.UpdateProfile(ctx, user.ID, ProfileInput{FirstName: &first, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Bob", updated.FirstName)
	assert.Equal(t, "Likes Go", updated.Bio)
	assert.Equal(t, "member", updated.Username)

	long := strings.Repeat("a", 501)
	_, err = env.users.UpdateProfile(ctx, user.ID, ProfileInput{Bio: &long})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	bad := "has space"
	_, err = env.users.UpdateProfile(ctx, user.ID, ProfileInput{Username: &bad})
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = env.users.UpdateProfile(ctx, 9999, ProfileInput{FirstName: &first})
	assert.ErrorIs(t, err, ErrUserNotFound)

	// ledger fields are untouched by profile edits
	_, err = env.reputation.Credit(ctx, user.ID, 9, "x", "admin", nil)
	require.NoError(t, err)
	_, err = env.users.UpdateProfile(ctx, user.ID, ProfileInput{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, 9, env.reload(t, user.ID).ReputationPoints)
}
