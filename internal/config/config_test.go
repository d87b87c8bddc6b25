package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 10, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 2000, cfg.MaxBodyLength)
	assert.Equal(t, 80.0, cfg.ScrollThreshold)
	assert.Empty(t, cfg.OutboxPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_TRANSPORT", TransportNATS)
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("RECONNECT_MAX_DELAY", "5s")
	t.Setenv("SCROLL_THRESHOLD", "120.5")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("TYPING_DEBOUNCE", "not-a-duration")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, ,http://localhost:3000")

	cfg := Load()

	assert.Equal(t, TransportNATS, cfg.Transport)
	assert.Equal(t, 3, cfg.ReconnectMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 120.5, cfg.ScrollThreshold)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, 400*time.Millisecond, cfg.TypingDebounce, "invalid values fall back to the default")
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
}
