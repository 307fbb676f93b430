package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	InvoicePrefix         string
	DefaultDueDays        int
	ReportCacheTTL        time.Duration
	DBBreakerFailures     uint32
	DBBreakerTimeout      time.Duration
	// Bootstrap owner for the durable store; ignored by the in-memory store.
	BootstrapTenant        string
	BootstrapOwnerUsername string
	BootstrapOwnerPassword string
}

// Load reads the process environment. A .env file in the working directory is applied first
// when present; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0, 0),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		InvoicePrefix:         strings.ToUpper(strings.TrimSpace(getEnv("INVOICE_PREFIX", "INV"))),
		DefaultDueDays:        getInt("DEFAULT_DUE_DAYS", 7, 0),
		ReportCacheTTL:        time.Duration(getInt("REPORT_CACHE_TTL_SECONDS", 60, 1)) * time.Second,
		DBBreakerFailures:     uint32(getInt("DB_BREAKER_FAILURES", 5, 1)),
		DBBreakerTimeout:      time.Duration(getInt("DB_BREAKER_TIMEOUT_SECONDS", 30, 1)) * time.Second,

		BootstrapTenant:        strings.TrimSpace(os.Getenv("BOOTSTRAP_TENANT")),
		BootstrapOwnerUsername: strings.TrimSpace(os.Getenv("BOOTSTRAP_OWNER_USERNAME")),
		BootstrapOwnerPassword: os.Getenv("BOOTSTRAP_OWNER_PASSWORD"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < min {
		return fallback
	}
	return n
}
