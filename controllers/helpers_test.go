package controllers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/cppla/empire/services"
)

func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return ctx, w
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query         string
		limit, offset int
		ok            bool
		status        int
	}{
		{"/", 20, 0, true, http.StatusOK},
		{"/?limit=5&page=3", 5, 10, true, http.StatusOK},
		{"/?limit=100", 100, 0, true, http.StatusOK},
		{"/?limit=0", 0, 0, false, http.StatusBadRequest},
		{"/?limit=101", 0, 0, false, http.StatusBadRequest},
		{"/?limit=ten", 0, 0, false, http.StatusBadRequest},
		{"/?page=0", 0, 0, false, http.StatusBadRequest},
		{"/?page=-2", 0, 0, false, http.StatusBadRequest},
	}
	for _, tt := range tests {
		ctx, w := testContext(tt.query)
		limit, offset, ok := pagination(ctx, 20)
		assert.Equal(t, tt.ok, ok, tt.query)
		assert.Equal(t, tt.limit, limit, tt.query)
		assert.Equal(t, tt.offset, offset, tt.query)
		assert.Equal(t, tt.status, w.Code, tt.query)
	}
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrUserNotFound, http.StatusNotFound},
		{services.ErrInvalidAmount, http.StatusBadRequest},
		{services.ErrInvalidProfile, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		ctx, w := testContext("/")
		respondServiceError(ctx, tt.err, 50099, "boom")
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}
}
