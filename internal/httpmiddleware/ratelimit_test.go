package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhausts(t *testing.T) {
	l := NewTokenBucket(2, 2)

	assert.True(t, l.Allow(context.Background(), "10.0.0.1"))
	assert.True(t, l.Allow(context.Background(), "10.0.0.1"))
	assert.False(t, l.Allow(context.Background(), "10.0.0.1"), "bucket should be empty")
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	l := NewTokenBucket(1, 1)

	assert.True(t, l.Allow(context.Background(), "10.0.0.1"))
	assert.False(t, l.Allow(context.Background(), "10.0.0.1"))
	assert.True(t, l.Allow(context.Background(), "10.0.0.2"), "other clients keep their own budget")
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewTokenBucket(0, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(context.Background(), "10.0.0.1"))
	}
	assert.False(t, l.Allow(context.Background(), "10.0.0.1"))
}

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(NewTokenBucket(1, 1)))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Generated when absent.
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	// Honored when supplied.
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
}
