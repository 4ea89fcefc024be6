package gateway

import (
	"context"
	"fmt"
	"time"
)

// Provider names an AI backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// IsValid reports whether p names a supported provider.
func (p Provider) IsValid() bool {
	return p == ProviderGemini || p == ProviderOpenAI
}

// ProviderConfig carries the settings of every provider; only the
// selected provider's fields are read.
type ProviderConfig struct {
	Provider Provider
	Timeout  time.Duration

	GeminiAPIKey       string
	GeminiCaptureModel string
	GeminiAdviceModel  string

	OpenAIAPIKey string
	OpenAIModel  string
}

// New builds the gateway for cfg.Provider.
func New(ctx context.Context, cfg ProviderConfig) (Gateway, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiGateway(ctx, GeminiConfig{
			APIKey:       cfg.GeminiAPIKey,
			CaptureModel: cfg.GeminiCaptureModel,
			AdviceModel:  cfg.GeminiAdviceModel,
			Timeout:      cfg.Timeout,
		})
	case ProviderOpenAI:
		return NewOpenAIGateway(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("gateway.New: unknown provider %q", cfg.Provider)
	}
}
