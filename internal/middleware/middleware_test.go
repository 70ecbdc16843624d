package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"code": 0, "user_id": id})
	})
	r.POST("/submit", handlers...)
	return r
}

func doSubmit(r *gin.Engine, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdentity(t *testing.T) {
	r := newEngine(Identity())

	w := doSubmit(r, "42")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"user_id":42}`, w.Body.String())

	for _, bad := range []string{"", "abc", "0", "-3", "1.5"} {
		w := doSubmit(r, bad)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", bad)
	}
}

func TestRedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := newEngine(Identity(), RedisRateLimit(rdb, 2, time.Minute))

	assert.Equal(t, http.StatusOK, doSubmit(r, "1").Code)
	assert.Equal(t, http.StatusOK, doSubmit(r, "1").Code)
	w := doSubmit(r, "1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":429`)

	// 不同用户互不影响
	assert.Equal(t, http.StatusOK, doSubmit(r, "2").Code)
	assert.True(t, mr.Exists("rate_limit:submit:user:1"))
}

func TestRedisRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	r := newEngine(Identity(), RedisRateLimit(rdb, 1, time.Minute))
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doSubmit(r, "1").Code)
	}
}
