// Package config loads cmd/execengine's configuration from environment
// variables. Adapted from the teacher's config.Config: dropped the Angel
// One credential fields (AngelAPIKey/AngelClientCode/AngelPassword/
// AngelTOTPSecret) and the NSE token/multi-TF fields (SubscribeTokens,
// EnabledTFs) — this engine authenticates to a public crypto exchange feed
// with a pluggable header map rather than a broker session, and runs one
// symbol/timeframe per process (spec §2 Engine) rather than fanning a
// subscription list across many tokens and timeframes.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds cmd/execengine's configuration, loaded from environment
// variables with sensible defaults.
type Config struct {
	// Exchange connection
	WSURL       string
	RESTBaseURL string
	AuthHeaders map[string]string

	// Instrument
	Symbol    string
	Timeframe string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	AdminAddr     string

	// Strategy
	FastPeriod  int
	SlowPeriod  int
	Qty         float64
	EnableRSI   bool
	RSIPeriod   int
	SlippageBps float64
	Capital     float64

	// Alerting (internal/notification): which backend ObserverBridge sends
	// to. One of "log" (default), "telegram", "webhook".
	NotifyChannel    string
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible
// defaults for a single tBTCUSD/1m paper-trading run.
func Load() *Config {
	return &Config{
		WSURL:       getEnv("EXCHANGE_WS_URL", "wss://api-pub.bitfinex.com/ws/2"),
		RESTBaseURL: getEnv("EXCHANGE_REST_URL", "https://api-pub.bitfinex.com/v2"),
		AuthHeaders: map[string]string{},

		Symbol:    getEnv("SYMBOL", "tBTCUSD"),
		Timeframe: getEnv("TF", "1m"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9091"),
		AdminAddr:     getEnv("ADMIN_ADDR", ":9092"),

		FastPeriod:  getEnvInt("SMA_FAST_PERIOD", 9),
		SlowPeriod:  getEnvInt("SMA_SLOW_PERIOD", 21),
		Qty:         getEnvFloat("QTY", 0.01),
		EnableRSI:   getEnvBool("ENABLE_RSI", true),
		RSIPeriod:   getEnvInt("RSI_PERIOD", 14),
		SlippageBps: getEnvFloat("SLIPPAGE_BPS", 5),
		Capital:     getEnvFloat("CAPITAL", 10000),

		NotifyChannel:    getEnv("NOTIFY_CHANNEL", "log"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %.4f", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return b
}
