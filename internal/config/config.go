package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, shared by the CLI runner and
// the stub server.
type Config struct {
	LogLevel  string
	LogFormat string

	// Upstream exam API consumed by the engine.
	APIBaseURL  string
	AccessToken string

	// Durable session store. Backend is one of "sqlite", "redis", "memory".
	StoreBackend string
	SQLitePath   string
	RedisURL     string

	// Engine timing and pacing.
	TickInterval      time.Duration
	FlushEveryTicks   int
	CheckpointIndices []int
	CheckpointPause   time.Duration
	FullQuestionCount int
	QuizDefaultCount  int

	// Stub server.
	ServerPort     string
	GinMode        string
	JWTSecret      string
	JWTExpiry      time.Duration
	QuestionBank   string
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),

		APIBaseURL:  getEnv("EXAM_API_URL", "http://localhost:8080"),
		AccessToken: getEnv("EXAM_API_TOKEN", ""),

		StoreBackend: getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:   getEnv("SQLITE_PATH", "./examsim.db"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		TickInterval:      time.Duration(getEnvInt("TICK_INTERVAL_MS", 1000)) * time.Millisecond,
		FlushEveryTicks:   getEnvInt("FLUSH_EVERY_TICKS", 5),
		CheckpointIndices: parseInts(getEnv("CHECKPOINT_INDICES", "60,120")),
		CheckpointPause:   time.Duration(getEnvInt("CHECKPOINT_PAUSE_MINUTES", 10)) * time.Minute,
		FullQuestionCount: getEnvInt("FULL_QUESTION_COUNT", 180),
		QuizDefaultCount:  getEnvInt("QUIZ_DEFAULT_COUNT", 10),

		ServerPort:     getEnv("SERVER_PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		JWTSecret:      getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:      time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		QuestionBank:   getEnv("QUESTION_BANK", ""),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseInts splits a comma-separated integer list, skipping malformed entries.
func parseInts(raw string) []int {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
