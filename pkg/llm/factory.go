package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewCompletionClient creates the completion client named by provider:
// "openai" for any OpenAI-compatible endpoint, "anthropic" for the
// Anthropic Messages API.
func NewCompletionClient(provider string, cfg *Config, logger *zap.Logger) (CompletionClient, error) {
	switch provider {
	case "openai":
		return NewClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", provider)
	}
}
