package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Facebook Graph API
	GraphAPIBaseURL    string
	GraphAPITimeout    time.Duration
	GraphAPIRatePerSec float64

	// Scorer
	ScorerBaseURL  string
	ScorerTimeout  time.Duration
	ModelProbeText string

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitRemote  int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
}

// LoadDotEnv は.envファイルが存在する場合に環境変数として読み込む。
// 既に設定されている環境変数は上書きしない。読み込んだ場合はtrueを返す。
func LoadDotEnv(paths ...string) bool {
	return godotenv.Load(paths...) == nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GraphAPIBaseURL = getEnvString("GRAPH_API_BASE_URL", "https://graph.facebook.com")
	cfg.GraphAPITimeout = getEnvDuration("GRAPH_API_TIMEOUT", 10*time.Second)
	cfg.GraphAPIRatePerSec = getEnvFloat("GRAPH_API_RATE_PER_SEC", 5)
	cfg.ScorerBaseURL = getEnvString("SCORER_BASE_URL", "http://127.0.0.1:5000")
	cfg.ScorerTimeout = getEnvDuration("SCORER_TIMEOUT", 10*time.Second)
	cfg.ModelProbeText = getEnvString("MODEL_PROBE_TEXT", "model health check")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRemote = getEnvInt("RATE_LIMIT_REMOTE", 30)
	cfg.LogLevel = parseLogLevel(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// parseLogLevel はログレベル名をslog.Levelに変換する。未知の値はInfoとする。
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
