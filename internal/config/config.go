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
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	// Gemini AI
	GeminiAPIKey      string
	GeminiModels      []string
	GeminiTemperature float32

	// CORS
	CORSOrigins []string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		Env:               getEnvOrDefault("ENV", "development"),
		DatabaseURL:       mustGetEnv("DATABASE_URL"),
		MigrationsDir:     getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:          mustGetEnv("REDIS_URL"),
		JWTSecret:         mustGetEnv("JWT_SECRET"),
		AccessTokenTTL:    getEnvAsDurationOrDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   getEnvAsDurationOrDefault("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		BcryptCost:        getEnvAsIntOrDefault("BCRYPT_COST", 12),
		GeminiAPIKey:      mustGetEnv("GEMINI_API_KEY"),
		GeminiModels:      getEnvAsListOrDefault("GEMINI_MODELS", []string{"gemini-2.0-flash"}),
		GeminiTemperature: float32(getEnvAsFloatOrDefault("GEMINI_TEMPERATURE", 0.7)),
		CORSOrigins:       getEnvAsListOrDefault("CORS_ORIGINS", []string{"*"}),
	}

	return cfg
}

// IsProduction reports whether ENV selects the production profile.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// getEnvAsListOrDefault splits a comma separated value, dropping blank entries.
func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
