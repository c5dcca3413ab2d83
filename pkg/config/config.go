package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the tracker process.
type Config struct {
	Port string

	// Polymarket endpoints
	CLOBHost  string
	GammaHost string
	WSURL     string

	// CLOB API credentials (key/secret/passphrase triple)
	APIKey        string
	APISecret     string
	APIPassphrase string

	// Market under management
	MarketSlug string
	Token1ID   string
	Token2ID   string

	// Tracking loops
	StatusCheckInterval time.Duration
	CleanupInterval     time.Duration
	OrderTimeout        time.Duration
	KeepAliveInterval   time.Duration

	// Capture / strategy
	CaptureInterval time.Duration
	BuyThreshold    float64
	SellThreshold   float64
	InitialCash     float64
	MaxTrades       int
	StrategyConfig  string // optional YAML overrides

	// Database
	DBPath string

	// API auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		CLOBHost:            getEnv("CLOB_HOST", "https://clob.polymarket.com"),
		GammaHost:           getEnv("GAMMA_HOST", "https://gamma-api.polymarket.com"),
		WSURL:               getEnv("WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/"),
		APIKey:              os.Getenv("POLYMARKET_API_KEY"),
		APISecret:           os.Getenv("POLYMARKET_API_SECRET"),
		APIPassphrase:       os.Getenv("POLYMARKET_API_PASSPHRASE"),
		MarketSlug:          getEnv("MARKET_SLUG", ""),
		Token1ID:            getEnv("TOKEN1_ID", ""),
		Token2ID:            getEnv("TOKEN2_ID", ""),
		StatusCheckInterval: getEnvDuration("STATUS_CHECK_INTERVAL", 60*time.Second),
		CleanupInterval:     getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute),
		OrderTimeout:        getEnvDuration("ORDER_TIMEOUT", 45*time.Minute),
		KeepAliveInterval:   getEnvDuration("KEEPALIVE_INTERVAL", 30*time.Second),
		CaptureInterval:     getEnvDuration("CAPTURE_INTERVAL", 60*time.Second),
		BuyThreshold:        getEnvFloat("BUY_THRESHOLD", -0.04),
		SellThreshold:       getEnvFloat("SELL_THRESHOLD", 0.04),
		InitialCash:         getEnvFloat("INITIAL_CASH", 10.0),
		MaxTrades:           getEnvInt("MAX_TRADES", 5),
		StrategyConfig:      getEnv("STRATEGY_CONFIG", ""),
		DBPath:              getEnv("DB_PATH", "./data/polytrack.db"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

// Tokens returns the configured token ids, skipping empties.
func (c *Config) Tokens() []string {
	return splitAndTrim(c.Token1ID + "," + c.Token2ID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are taken as seconds for older deployments.
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
