package llm

import (
	"log/slog"
	"strings"

	"github.com/xiaot623/gogo/chatrelay/internal/config"
)

// ModeMock selects the mock client through CHATRELAY_MODE.
const ModeMock = "MOCK"

// NewLLMClient creates an LLM client based on cfg.Mode.
// If the mode is MOCK, returns a MockClient; otherwise returns a real Client.
func NewLLMClient(cfg *config.Config, logger *slog.Logger) LLMClient {
	if strings.EqualFold(cfg.Mode, ModeMock) {
		logger.Info("CHATRELAY_MODE=MOCK detected, using mock LLM client")
		return NewMockClient()
	}

	if cfg.LLMAPIKey == "" {
		logger.Warn("no LLM API key configured, provider calls will likely fail", "base_url", cfg.LLMBaseURL)
	}
	return NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout, cfg.LLMStreamIdleTimeout)
}
