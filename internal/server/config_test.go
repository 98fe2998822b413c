package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	want := defaultConfig()
	require.Equal(t, want.Port, cfg.Port)
	require.Equal(t, want.AllowedOrigins, cfg.AllowedOrigins)
	require.Equal(t, want.MaxMessageSize, cfg.MaxMessageSize)
	require.Equal(t, want.SendBufferSize, cfg.SendBufferSize)
	require.Equal(t, want.RateLimit, cfg.RateLimit)
	require.Equal(t, want.Chat, cfg.Chat)
	require.Equal(t, want.Store, cfg.Store)
	require.Equal(t, want.ShutdownTimeout, cfg.ShutdownTimeout)
	require.Empty(t, cfg.JWTSecret)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "250ms")
	t.Setenv("SEND_BUFFER_SIZE", "16")
	t.Setenv("STORE_BACKEND", "Badger")
	t.Setenv("BADGER_PATH", "/var/lib/chat")
	t.Setenv("PERSIST_MAX_ATTEMPTS", "3")
	t.Setenv("PERSIST_RETRY_DELAY", "2s")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOW_ANONYMOUS", "true")
	t.Setenv("DISCONNECT_NOTICE", "has left")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Port)
	require.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.EqualValues(t, 1024, cfg.MaxMessageSize)
	require.Equal(t, RateLimitConfig{Burst: 10, RefillInterval: 250 * time.Millisecond}, cfg.RateLimit)
	require.Equal(t, 16, cfg.SendBufferSize)
	require.Equal(t, BackendBadger, cfg.Store.Backend)
	require.Equal(t, "/var/lib/chat", cfg.Store.BadgerPath)
	require.Equal(t, 3, cfg.Store.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.Store.RetryDelay)
	require.Equal(t, "s3cret", cfg.JWTSecret)
	require.True(t, cfg.Chat.AllowAnonymous)
	require.Equal(t, "has left", cfg.Chat.DisconnectNotice)
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("RATE_LIMIT_BURST", "0")
	t.Setenv("SEND_BUFFER_SIZE", "-1")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("PERSIST_MAX_ATTEMPTS", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	defaults := defaultConfig()
	require.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	require.Equal(t, defaults.RateLimit.Burst, cfg.RateLimit.Burst)
	require.Equal(t, defaults.SendBufferSize, cfg.SendBufferSize)
	require.Equal(t, BackendFile, cfg.Store.Backend)
	require.Equal(t, defaults.Store.MaxAttempts, cfg.Store.MaxAttempts)
}

func TestLoadConfig_UnparsableValue(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestParseOrigins(t *testing.T) {
	require.Nil(t, parseOrigins("  "))
	require.Equal(t, []string{"*"}, parseOrigins("*"))
	require.Equal(t, []string{"http://a", "http://b"}, parseOrigins("http://a ,http://b"))
}
