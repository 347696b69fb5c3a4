package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/empire/config"
	"github.com/cppla/empire/models"
	"github.com/cppla/empire/services"
	"github.com/cppla/empire/utils"
)

type fakeUsers struct {
	byID       map[uint]*models.User
	byTelegram map[int64]*models.User
	err        error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[uint]*models.User{}, byTelegram: map[int64]*models.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
		f.byTelegram[u.TelegramID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byTelegram[telegramID]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func serve(handler gin.HandlerFunc, headers map[string]string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/", handler, func(ctx *gin.Context) {
		id, _ := ctx.Get(ContextUserIDKey)
		ctx.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	config.Override(config.AppConfig{JWTSecret: "middleware-secret"})
	member := &models.User{ID: 3, TelegramID: 300}
	users := newFakeUsers(member)

	token, err := utils.GenerateToken(3, 300, time.Hour)
	require.NoError(t, err)
	ghost, err := utils.GenerateToken(99, 990, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		body    string
	}{
		{"no credentials", nil, http.StatusUnauthorized, "40101"},
		{"bad scheme", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized, "40102"},
		{"garbage token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized, "40105"},
		{"valid token", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK, `"user_id":3`},
		{"token for unknown user", map[string]string{"Authorization": "Bearer " + ghost}, http.StatusUnauthorized, "40107"},
		{"telegram header", map[string]string{TelegramIDHeader: "300"}, http.StatusOK, `"user_id":3`},
		{"telegram header not a number", map[string]string{TelegramIDHeader: "abc"}, http.StatusUnauthorized, "40106"},
		{"telegram header unknown", map[string]string{TelegramIDHeader: "301"}, http.StatusUnauthorized, "40107"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(AuthRequired(users), tt.headers)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestAuthRequiredLookupFailure(t *testing.T) {
	users := newFakeUsers()
	users.err = errors.New("connection refused")

	w := serve(AuthRequired(users), map[string]string{TelegramIDHeader: "300"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminRequired(t *testing.T) {
	hash, err := utils.HashAdminKey("ops")
	require.NoError(t, err)
	config.Override(config.AppConfig{JWTSecret: "middleware-secret", AdminAPIKeyHash: hash})

	users := newFakeUsers(
		&models.User{ID: 1, TelegramID: 100, IsAdmin: true},
		&models.User{ID: 2, TelegramID: 200},
	)

	adminToken, err := utils.GenerateToken(1, 100, time.Hour)
	require.NoError(t, err)
	memberToken, err := utils.GenerateToken(2, 200, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(AdminRequired(users), map[string]string{AdminKeyHeader: "ops"}).Code)
	assert.Equal(t, http.StatusForbidden, serve(AdminRequired(users), map[string]string{AdminKeyHeader: "nope"}).Code)
	assert.Equal(t, http.StatusOK, serve(AdminRequired(users), map[string]string{"Authorization": "Bearer " + adminToken}).Code)
	assert.Equal(t, http.StatusForbidden, serve(AdminRequired(users), map[string]string{"Authorization": "Bearer " + memberToken}).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(AdminRequired(users), nil).Code)

	// an admin's telegram id alone is not proof of identity
	w := serve(AdminRequired(users), map[string]string{TelegramIDHeader: "100"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "40101")
}

func TestRateLimiterAllow(t *testing.T) {
	l := NewRateLimiter(4) // burst 2, one token every 15s
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("ip:a", now))
	assert.True(t, l.allow("ip:a", now))
	assert.False(t, l.allow("ip:a", now))
	assert.True(t, l.allow("ip:b", now), "clients are limited independently")

	assert.True(t, l.allow("ip:a", now.Add(15*time.Second)))

	// idle visitors are forgotten
	l.allow("ip:c", now.Add(time.Hour))
	l.mu.Lock()
	_, kept := l.visitors["ip:b"]
	l.mu.Unlock()
	assert.False(t, kept)
}

func TestRateLimiterMiddleware(t *testing.T) {
	l := NewRateLimiter(2) // burst 1
	r := gin.New()
	r.GET("/", l.Middleware(), func(ctx *gin.Context) { ctx.Status(http.StatusNoContent) })

	do := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.GET("/", RequestID(), func(ctx *gin.Context) {
		ctx.String(http.StatusOK, ctx.GetString(utils.RequestIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(utils.RequestIDKey)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(utils.RequestIDKey, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(utils.RequestIDKey))
}
