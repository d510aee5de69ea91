package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StateStoreMemory / StateStoreDynamo はOAUTH_STATE_STOREの取りうる値。
const (
	StateStoreMemory = "memory"
	StateStoreDynamo = "dynamodb"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// DynamoDB
	TableName   string
	AWSRegion   string
	EndpointURL string // DynamoDB Local向け。空なら通常のAWSエンドポイント

	// OAuth
	BlueskyClientID     string
	BlueskyClientSecret string
	BlueskyRedirectURL  string
	OAuthStateTTL       time.Duration
	OAuthStateStore     string // memory | dynamodb

	// Session
	SessionSecret string
	SessionMaxAge time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitCreate  int

	// Server
	ServerPort  string
	BaseURL     string
	FrontendURL string

	// CORS
	CORSAllowedOrigin string

	// DevMode はテストセッション発行等の開発用機能を有効にする。
	DevMode bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.TableName = os.Getenv("DYNAMODB_TABLE_NAME")
	if cfg.TableName == "" {
		missing = append(missing, "DYNAMODB_TABLE_NAME")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.BlueskyClientID = os.Getenv("BLUESKY_CLIENT_ID")
	if cfg.BlueskyClientID == "" {
		missing = append(missing, "BLUESKY_CLIENT_ID")
	}

	cfg.BlueskyClientSecret = os.Getenv("BLUESKY_CLIENT_SECRET")
	if cfg.BlueskyClientSecret == "" {
		missing = append(missing, "BLUESKY_CLIENT_SECRET")
	}

	cfg.BlueskyRedirectURL = os.Getenv("BLUESKY_REDIRECT_URL")
	if cfg.BlueskyRedirectURL == "" {
		missing = append(missing, "BLUESKY_REDIRECT_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AWSRegion = getEnvString("AWS_REGION", "us-east-1")
	cfg.EndpointURL = getEnvString("DYNAMODB_ENDPOINT_URL", "")
	cfg.SessionMaxAge = time.Duration(getEnvInt("SESSION_MAX_AGE", 604800)) * time.Second
	cfg.OAuthStateTTL = time.Duration(getEnvInt("OAUTH_STATE_TTL", 600)) * time.Second
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCreate = getEnvInt("RATE_LIMIT_CREATE", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", cfg.BaseURL)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.DevMode = getEnvBool("DEV_MODE", false)

	cfg.OAuthStateStore = strings.ToLower(getEnvString("OAUTH_STATE_STORE", StateStoreMemory))
	if cfg.OAuthStateStore != StateStoreMemory && cfg.OAuthStateStore != StateStoreDynamo {
		return nil, fmt.Errorf("OAUTH_STATE_STORE must be %q or %q, got %q",
			StateStoreMemory, StateStoreDynamo, cfg.OAuthStateStore)
	}

	return cfg, nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
