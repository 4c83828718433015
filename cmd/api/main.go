package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"churchattend/internal/auth"
	"churchattend/internal/cache"
	"churchattend/internal/config"
	"churchattend/internal/handler"
	"churchattend/internal/httpmiddleware"
	"churchattend/internal/ratelimit"
	"churchattend/internal/records"
	"churchattend/internal/session"
	"churchattend/internal/sheets"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	dial := func(ctx context.Context) (sheets.API, error) {
		return sheets.NewClient(ctx, cfg.CredentialsFile, cfg.SpreadsheetID)
	}

	// Every workspace gets its own connection, cache and limiter, so no two
	// sessions share mutable store state.
	factory := func() (*records.Store, *auth.Service) {
		conn := sheets.NewConn(dial, cfg.ConnectionTTL)
		store := records.NewStore(conn, cache.NewTimed(cfg.CacheTTL), ratelimit.New(),
			cfg.ReadInterval, cfg.WriteInterval)
		return store, auth.NewService(store, cfg.RememberSecret)
	}

	bootstrap := session.NewWorkspace(factory())
	registry := session.NewRegistry(factory, cfg.ConnectionTTL)

	// First boot of an empty Users sheet gets the default super admin. The
	// server still comes up when the spreadsheet is unreachable; the account
	// can be created later with cmd/setup.
	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	created, err := bootstrap.Auth.EnsureDefaultAdmin(bootCtx)
	cancel()
	switch {
	case err != nil:
		log.Printf("warning: default admin check failed: %v", err)
	case created:
		log.Printf("created default admin %q, change its password on first login", auth.DefaultAdminUsername)
	}

	h := handler.New(bootstrap, registry, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// Request IDs for log correlation
	r.Use(httpmiddleware.RequestID())

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	// Rate limiting
	r.Use(httpmiddleware.RateLimit(newHTTPLimiter(cfg)))

	// Request metrics
	r.Use(httpmiddleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	h.Register(r)

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// newHTTPLimiter picks the rate limit backend: redis when configured, so all
// instances share one budget, in-memory otherwise.
func newHTTPLimiter(cfg config.App) httpmiddleware.Limiter {
	if cfg.RateLimitBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Printf("rate limiting via redis at %s", cfg.RedisAddr)
		return httpmiddleware.NewRedisFixedWindow(rdb, cfg.RateLimitPerMin)
	}
	return httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
