// Package config provides environment configuration for the messaging client.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Transport names accepted by CHAT_TRANSPORT.
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Channel settings
	Transport        string
	ChannelURL       string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration

	// NATS settings (Transport == "nats")
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string

	// Auth
	Token string

	// REST store
	APIBaseURL          string
	APITimeout          time.Duration
	BreakerFailures     int
	BreakerOpenDuration time.Duration

	// Reconnection
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int
	ReconnectJitter      float64

	// Outbound queue persistence; empty keeps the queue in memory.
	OutboxPath string

	// Conversation behavior
	TypingDebounce  time.Duration
	TypingExpiry    time.Duration
	MatchWindow     time.Duration
	ScrollThreshold float64

	// Message body rules
	MaxBodyLength  int
	ShoutingLimit  int
	MaxRepeatedRun int

	// Local status API
	StatusAddr        string
	StatusToken       string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	Environment string
	LogLevel    string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Channel
		Transport:        getEnv("CHAT_TRANSPORT", TransportWebSocket),
		ChannelURL:       getEnv("CHAT_URL", "http://localhost:8080/ws/messages"),
		HandshakeTimeout: getDurationEnv("CHAT_HANDSHAKE_TIMEOUT", 10*time.Second),
		PingInterval:     getDurationEnv("CHAT_PING_INTERVAL", 30*time.Second),
		ReadTimeout:      getDurationEnv("CHAT_READ_TIMEOUT", 60*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),

		// Auth
		Token: getEnv("CHAT_TOKEN", ""),

		// REST store
		APIBaseURL:          getEnv("API_BASE_URL", "http://localhost:8080/api"),
		APITimeout:          getDurationEnv("API_TIMEOUT", 15*time.Second),
		BreakerFailures:     getIntEnv("API_BREAKER_FAILURES", 5),
		BreakerOpenDuration: getDurationEnv("API_BREAKER_OPEN", 30*time.Second),

		// Reconnection
		ReconnectBaseDelay:   getDurationEnv("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:    getDurationEnv("RECONNECT_MAX_DELAY", 30*time.Second),
		ReconnectMaxAttempts: getIntEnv("RECONNECT_MAX_ATTEMPTS", 10),
		ReconnectJitter:      getFloatEnv("RECONNECT_JITTER", 0.2),

		OutboxPath: getEnv("OUTBOX_PATH", ""),

		// Conversation behavior
		TypingDebounce:  getDurationEnv("TYPING_DEBOUNCE", 400*time.Millisecond),
		TypingExpiry:    getDurationEnv("TYPING_EXPIRY", 4*time.Second),
		MatchWindow:     getDurationEnv("MATCH_WINDOW", 2*time.Minute),
		ScrollThreshold: getFloatEnv("SCROLL_THRESHOLD", 80),

		// Message body rules
		MaxBodyLength:  getIntEnv("MESSAGE_MAX_LENGTH", 2000),
		ShoutingLimit:  getIntEnv("MESSAGE_SHOUTING_LIMIT", 12),
		MaxRepeatedRun: getIntEnv("MESSAGE_MAX_REPEAT", 8),

		// Status API
		StatusAddr:        getEnv("STATUS_ADDR", "127.0.0.1:9464"),
		StatusToken:       getEnv("STATUS_TOKEN", ""),
		AllowedOrigins:    getListEnv("CORS_ORIGINS"),
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		Environment: getEnv("ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable, dropping empty items.
func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
