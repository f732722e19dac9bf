// internal/vision/provider.go
package vision

import (
	"context"
	"fmt"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderGateway   = "gateway"
)

// ProviderConfig selects and configures the backing Model.
type ProviderConfig struct {
	Provider        string
	Model           string
	GeminiAPIKey    string
	AnthropicAPIKey string
	GatewayURL      string
	GatewayAPIKey   string
}

// NewModel builds the Model named by cfg.Provider.
func NewModel(ctx context.Context, cfg ProviderConfig) (Model, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
	case ProviderAnthropic:
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.Model), nil
	case ProviderGateway:
		return NewGateway(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Provider)
	}
}
