package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string
	HTTPPort         string
	CredentialsFile  string
	SpreadsheetID    string
	ConnectionTTL    time.Duration
	CacheTTL         time.Duration
	ReadInterval     time.Duration
	WriteInterval    time.Duration
	JWTIssuer        string
	JWTSigningKey    string
	AccessTTL        time.Duration
	RememberSecret   string
	RateLimitPerMin  int
	RateLimitBackend string
	RedisAddr        string
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		CredentialsFile:  getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		SpreadsheetID:    getEnv("SPREADSHEET_ID", ""),
		ConnectionTTL:    durationEnv("CONNECTION_TTL", time.Hour),
		CacheTTL:         durationEnv("CACHE_TTL", 5*time.Minute),
		ReadInterval:     durationEnv("SHEETS_READ_INTERVAL", time.Second),
		WriteInterval:    durationEnv("SHEETS_WRITE_INTERVAL", 2*time.Second),
		JWTIssuer:        getEnv("JWT_ISSUER", "churchattend"),
		JWTSigningKey:    getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:        durationEnv("ACCESS_TTL", 8*time.Hour),
		RememberSecret:   getEnv("REMEMBER_SECRET", "dev-remember-secret-change"),
		RateLimitPerMin:  intEnv("RATE_LIMIT_PER_MIN", 120),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
