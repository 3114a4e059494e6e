// Package llm implements the model gateway that turns one persona and a set
// of frames into structured feedback.
package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/infrastructure/config"
	"github.com/critique/backend/internal/infrastructure/imaging"
)

// Providers.
const (
	ProviderOpenAI = "openai"
	ProviderStub   = "stub"
)

// NewGateway builds the gateway selected by cfg.Provider.
func NewGateway(cfg config.LLMConfig, log *zap.Logger) (feedback.Gateway, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIGateway(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}, imaging.NewNormalizer(cfg.MaxImageDimension, cfg.JPEGQuality), log), nil
	case ProviderStub:
		return NewStubGateway(0), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
