// Package config loads server configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port        string
	DBPath      string
	LogFilePath string
	Environment string
	CORSOrigins string

	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	SessionIdleTTL time.Duration
	SessionSweep   time.Duration
	TranscriptDir  string
}

// Load reads environment variables and returns Config with sane defaults.
// A .env file is honored when present.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using process environment")
	}

	cfg := Config{
		Port:           getEnv("PORT", "3001"),
		DBPath:         getEnv("DB_PATH", "data/conversations.db"),
		LogFilePath:    getEnv("LOG_FILE_PATH", "data/server.log"),
		Environment:    getEnv("GO_ENV", "development"),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		GroqAPIKey:     os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:    getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:      getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", time.Hour),
		SessionSweep:   getEnvAsDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		TranscriptDir:  getEnv("TRANSCRIPT_DIR", "data/transcripts"),
	}

	if cfg.GroqAPIKey == "" {
		log.Println("Warning: GROQ_API_KEY not set - replies will use canned fallbacks")
	}

	return cfg
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsDuration parses an environment variable as seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs <= 0 {
		log.Printf("config: invalid %s=%q, using default", key, value)
		return defaultValue
	}
	return time.Duration(secs) * time.Second
}
