package httpmiddleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a client may make another request right now.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimit rejects requests over the per-client budget with 429. Clients
// are keyed by IP.
func RateLimit(l Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !l.Allow(c.Request.Context(), key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// TokenBucket is the in-memory limiter backend, suitable for a single
// instance. Each client key gets a bucket refilled at perMinute tokens.
type TokenBucket struct {
	capacity int
	rate     int

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket returns a limiter allowing perMinute requests per client
// with bursts up to capacity. A non-positive capacity defaults to perMinute.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
	}
}

// Allow takes one token from the client's bucket, refilling first.
func (l *TokenBucket) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// RedisFixedWindow is the shared limiter backend: one INCR-per-request
// counter per client and minute, so every instance sees the same budget.
// When redis is unreachable requests pass; the sheet's own rate limiter is
// the real backstop.
type RedisFixedWindow struct {
	client    *redis.Client
	perMinute int
}

// NewRedisFixedWindow returns a limiter allowing perMinute requests per
// client across all instances sharing the redis.
func NewRedisFixedWindow(client *redis.Client, perMinute int) *RedisFixedWindow {
	return &RedisFixedWindow{client: client, perMinute: perMinute}
}

// Allow counts the request against the current minute window.
func (l *RedisFixedWindow) Allow(ctx context.Context, key string) bool {
	window := time.Now().Unix() / 60
	rk := fmt.Sprintf("ratelimit:%s:%d", key, window)
	n, err := l.client.Incr(ctx, rk).Result()
	if err != nil {
		log.Printf("httpmiddleware: redis rate limit unavailable, allowing: %v", err)
		return true
	}
	if n == 1 {
		l.client.Expire(ctx, rk, 2*time.Minute)
	}
	return n <= int64(l.perMinute)
}
