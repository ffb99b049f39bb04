package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DebugMode enables verbose logging across the service.
var DebugMode = getEnvBool("DEBUG_MODE", false)

type Config struct {
	// Symbols to subscribe at startup, e.g. "btc_usdt,eth_usdt".
	Symbols []string

	MaxDepth          int
	GapTolerance      int64
	MaxPendingUpdates int
	MaxPendingAge     time.Duration

	MailboxSize int
	DropOnFull  bool

	CrossedBookPolicy string

	ResyncAttempts   int
	ResyncBackoffMin time.Duration
	ResyncBackoffMax time.Duration

	BinanceWsEndpoint   string
	BinanceRestEndpoint string

	KafkaBrokers       []string
	KafkaTopic         string
	PublishDepth       int
	PublishMinInterval time.Duration

	HTTPAddr    string
	MetricsAddr string
}

func Load() *Config {
	return &Config{
		Symbols: getEnvList("SYMBOLS", []string{"btc_usdt"}),

		MaxDepth:          getEnvInt("MAX_DEPTH", 1000),
		GapTolerance:      int64(getEnvInt("GAP_TOLERANCE", 10)),
		MaxPendingUpdates: getEnvInt("MAX_PENDING_UPDATES", 64),
		MaxPendingAge:     getEnvDuration("MAX_PENDING_AGE", 3*time.Second),

		MailboxSize: getEnvInt("MAILBOX_SIZE", 1024),
		DropOnFull:  getEnvBool("MAILBOX_DROP_ON_FULL", false),

		CrossedBookPolicy: getEnv("CROSSED_BOOK_POLICY", "resync"),

		ResyncAttempts:   getEnvInt("RESYNC_ATTEMPTS", 5),
		ResyncBackoffMin: getEnvDuration("RESYNC_BACKOFF_MIN", 250*time.Millisecond),
		ResyncBackoffMax: getEnvDuration("RESYNC_BACKOFF_MAX", 10*time.Second),

		BinanceWsEndpoint:   getEnv("BINANCE_WS_ENDPOINT", "wss://stream.binance.com:9443/stream"),
		BinanceRestEndpoint: getEnv("BINANCE_REST_ENDPOINT", "https://api.binance.com"),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "orderbook-snapshots"),
		PublishDepth:       getEnvInt("PUBLISH_DEPTH", 20),
		PublishMinInterval: getEnvDuration("PUBLISH_MIN_INTERVAL", 250*time.Millisecond),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8081"),
		MetricsAddr: getEnv("METRICS_ADDR", ":8080"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
