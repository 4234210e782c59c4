// Package config provides configuration for the chat relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	HTTPPort int // Serves the websocket endpoint and the session directory

	// Database
	DatabaseURL string

	// Completion provider settings
	LLMBaseURL           string
	LLMAPIKey            string
	LLMModel             string
	LLMTimeout           time.Duration // Upper bound for one whole completion
	LLMStreamIdleTimeout time.Duration // Upper bound between two fragments
	Mode                 string        // "MOCK" swaps in the mock provider

	// Relay settings
	FragmentDelay  time.Duration // Pacing sleep after each relayed fragment, 0 disables
	ForwardHistory bool          // Send stored session history as provider context

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8000),
		DatabaseURL:          getEnv("DATABASE_URL", "file:chat.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"),
		LLMBaseURL:           getEnv("LLM_BASE_URL", "https://api.groq.com/openai"),
		LLMAPIKey:            getEnv("LLM_API_KEY", os.Getenv("GROQ_API_KEY")),
		LLMModel:             getEnv("LLM_MODEL", "mixtral-8x7b-32768"),
		LLMTimeout:           time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		LLMStreamIdleTimeout: time.Duration(getEnvInt("LLM_STREAM_IDLE_TIMEOUT_MS", 30000)) * time.Millisecond,
		Mode:                 getEnv("CHATRELAY_MODE", ""),
		FragmentDelay:        time.Duration(getEnvInt("FRAGMENT_DELAY_MS", 20)) * time.Millisecond,
		ForwardHistory:       getEnvBool("FORWARD_HISTORY", false),
		PingInterval:         time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:         time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:          time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:       int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports settings that would leave the server unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT_MS must be positive"))
	}
	if c.LLMStreamIdleTimeout <= 0 {
		errs = append(errs, errors.New("LLM_STREAM_IDLE_TIMEOUT_MS must be positive"))
	}
	if c.FragmentDelay < 0 {
		errs = append(errs, errors.New("FRAGMENT_DELAY_MS must not be negative"))
	}
	if c.PingInterval <= 0 || c.ReadTimeout <= c.PingInterval {
		errs = append(errs, errors.New("WS_READ_TIMEOUT_MS must exceed a positive WS_PING_INTERVAL_MS"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("WS_WRITE_TIMEOUT_MS must be positive"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("WS_MAX_MESSAGE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
