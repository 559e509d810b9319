// Package config loads the server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting for the server. Values come from the
// environment; cmd loads a .env file first in development.
type Config struct {
	Port string

	// GeminiAPIKey is the long-lived key used server-side to mint ephemeral
	// live tokens. It never leaves this process.
	GeminiAPIKey string
	LiveModel    string
	TokenTTL     time.Duration

	JWTSecret    []byte
	ClientSecret string

	MongoURI      string
	MongoDatabase string
}

// Load reads configuration from the environment. GEMINI_API_KEY and
// JWT_SECRET are required; everything else has a development default.
func Load() (*Config, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		GeminiAPIKey:  apiKey,
		LiveModel:     getEnv("LIVE_MODEL", "gemini-2.0-flash-live-001"),
		TokenTTL:      30 * time.Minute,
		JWTSecret:     []byte(jwtSecret),
		ClientSecret:  os.Getenv("CLIENT_SECRET"),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "sapling"),
	}

	if v := os.Getenv("TOKEN_TTL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid TOKEN_TTL_MINUTES: %q", v)
		}
		cfg.TokenTTL = time.Duration(minutes) * time.Minute
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
