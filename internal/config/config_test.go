package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	t.Setenv("TEST_DUR_1", "90s")
	t.Setenv("TEST_DUR_2", "soon")
	t.Setenv("TEST_DUR_3", "-5m")

	assert.Equal(t, 90*time.Second, getEnvAsDurationOrDefault("TEST_DUR_1", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDurationOrDefault("TEST_DUR_2", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDurationOrDefault("TEST_DUR_3", time.Minute))
	assert.Equal(t, time.Minute, getEnvAsDurationOrDefault("TEST_DUR_UNSET", time.Minute))
}

func TestGetEnvAsListOrDefault(t *testing.T) {
	t.Setenv("TEST_LIST_1", "gemini-2.0-flash, gemini-1.5-pro ,,")
	t.Setenv("TEST_LIST_2", " , ")

	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-pro"}, getEnvAsListOrDefault("TEST_LIST_1", nil))
	assert.Equal(t, []string{"*"}, getEnvAsListOrDefault("TEST_LIST_2", []string{"*"}))
	assert.Equal(t, []string{"*"}, getEnvAsListOrDefault("TEST_LIST_UNSET", []string{"*"}))
}

func TestGetEnvAsFloatOrDefault(t *testing.T) {
	t.Setenv("TEST_FLOAT_1", "0.25")
	t.Setenv("TEST_FLOAT_2", "warm")

	assert.InDelta(t, 0.25, getEnvAsFloatOrDefault("TEST_FLOAT_1", 0.7), 1e-9)
	assert.InDelta(t, 0.7, getEnvAsFloatOrDefault("TEST_FLOAT_2", 0.7), 1e-9)
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value123")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/geminichat")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_MODELS", "gemini-2.0-flash,gemini-1.5-flash")
	t.Setenv("ENV", "production")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-flash"}, cfg.GeminiModels)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}
