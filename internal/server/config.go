// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
}

// ChatConfig holds the policies applied by the hub.
type ChatConfig struct {
	// AllowAnonymous stores messages from connections that never joined
	// with an absent username instead of rejecting them.
	AllowAnonymous   bool   `env:"ALLOW_ANONYMOUS,default=false"`
	DisconnectNotice string `env:"DISCONNECT_NOTICE,default=se ha desconectado"`
}

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Backend     string        `env:"STORE_BACKEND,default=file"`
	ChatFile    string        `env:"CHAT_FILE,default=chats.json"`
	BadgerPath  string        `env:"BADGER_PATH,default=data/badger"`
	MaxAttempts int           `env:"PERSIST_MAX_ATTEMPTS,default=5"`
	RetryDelay  time.Duration `env:"PERSIST_RETRY_DELAY,default=100ms"`
}

// Store backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port              string `env:"SERVER_PORT,default=:8080"`
	AllowedOriginsRaw string `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	AllowedOrigins    []string
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE,default=256"`
	JWTSecret         string        `env:"JWT_SECRET"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	RateLimit         RateLimitConfig
	Chat              ChatConfig
	Store             StoreConfig
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Port:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		SendBufferSize: 256,
		LogLevel:       "info",
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
		Chat: ChatConfig{
			DisconnectNotice: "se ha desconectado",
		},
		Store: StoreConfig{
			Backend:     BackendFile,
			ChatFile:    "chats.json",
			BadgerPath:  "data/badger",
			MaxAttempts: 5,
			RetryDelay:  100 * time.Millisecond,
		},
	}
}

// LoadConfig reads the configuration from environment variables. Unset
// variables fall back to their defaults; invalid numeric values are
// clamped back to defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	cfg.AllowedOrigins = parseOrigins(cfg.AllowedOriginsRaw)

	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaults.SendBufferSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.Chat.DisconnectNotice == "" {
		cfg.Chat.DisconnectNotice = defaults.Chat.DisconnectNotice
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend != BackendBadger {
		cfg.Store.Backend = BackendFile
	}
	if cfg.Store.ChatFile == "" {
		cfg.Store.ChatFile = defaults.Store.ChatFile
	}
	if cfg.Store.BadgerPath == "" {
		cfg.Store.BadgerPath = defaults.Store.BadgerPath
	}
	if cfg.Store.MaxAttempts <= 0 {
		cfg.Store.MaxAttempts = defaults.Store.MaxAttempts
	}
	if cfg.Store.RetryDelay <= 0 {
		cfg.Store.RetryDelay = defaults.Store.RetryDelay
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
