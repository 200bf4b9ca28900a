package core

import (
	"context"
	"fmt"
	"net/http"

	"gwi.com/ai-chat/internal/config"
)

const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.7
	defaultImageSize   = "1024x1024"
)

// ChatMessage is one turn sent to the provider. ImageURL is only set for
// vision requests.
type ChatMessage struct {
	Role     string
	Content  string
	ImageURL string
}

type CompletionRequest struct {
	Capability Capability // CapabilityTextChat or CapabilityVision, selects the model
	Messages   []ChatMessage
}

type ImageRequest struct {
	Prompt string
	Size   string
}

// LLMProvider is the remote capability boundary. Implementations make
// exactly one remote call per method invocation and never retry.
type LLMProvider interface {
	ChatCompletion(ctx context.Context, apiKey string, req CompletionRequest) (string, error)
	GenerateImage(ctx context.Context, apiKey string, req ImageRequest) (string, error)
	APIKeyPrefix() string
	Name() string
}

func NewLLMProvider(cfg config.Config) (LLMProvider, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(OpenAIOptions{
			BaseURL:     cfg.OpenAIBaseURL,
			ChatModel:   cfg.OpenAIChatModel,
			VisionModel: cfg.OpenAIVisionModel,
			ImageModel:  cfg.OpenAIImageModel,
			Client:      &http.Client{Timeout: cfg.LLMTimeout},
		}), nil
	case config.ProviderGemini:
		return NewGeminiProvider(cfg.GeminiModel), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}
