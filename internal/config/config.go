package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	PostgresURI    string
	RedisURI       string
	Port           string
	FrontendURL    string
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	Host           string   // Raw HOST env (e.g. https://api.recetario.app)
	AllowedHost    string   // Hostname only for strict host check (production only)
	Environment    string   // ENV: production, development, etc.

	// Upload pipeline
	UploadRoot    string // On-disk root for per-user asset namespaces
	MaxUploadSize int64  // Max upload size in bytes

	// Canonical asset dimensions per slot
	AvatarSize int // Avatar is square
	CoverW     int
	CoverH     int

	SessionTTL   time.Duration
	HashTimeCost int // Argon2id time cost
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))
	host := getEnv("HOST", "http://localhost:8080")

	// AllowedHost is only set in production; host check is skipped in development
	var allowedHost string
	if env == "production" {
		allowedHost = stripToHostname(host)
	}

	// CORS: allow multiple origins so the production frontend works
	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return &Config{
		PostgresURI:    getEnv("POSTGRES_URI", "postgres://localhost:5432/recetario?sslmode=disable"),
		RedisURI:       getEnv("REDIS_URI", "redis://localhost:6379/0"),
		Host:           host,
		AllowedHost:    allowedHost,
		Environment:    env,
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		AllowedOrigins: allowedOrigins,
		UploadRoot:     getEnv("UPLOAD_ROOT", "./public/uploads/users"),
		MaxUploadSize:  getEnvInt64("MAX_FILE_SIZE", 5*1024*1024), // 5MB
		AvatarSize:     getEnvInt("AVATAR_SIZE", 400),
		CoverW:         getEnvInt("COVER_WIDTH", 1200),
		CoverH:         getEnvInt("COVER_HEIGHT", 400),
		SessionTTL:     time.Duration(getEnvInt("SESSION_TTL_HOURS", 7*24)) * time.Hour,
		HashTimeCost:   getEnvInt("ARGON2_TIME_COST", 3),
	}
}

// stripToHostname reduces e.g. https://api.recetario.app:443/x to api.recetario.app
func stripToHostname(s string) string {
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	if idx := strings.Index(s, "/"); idx != -1 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ":"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}
