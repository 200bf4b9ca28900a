package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIOptions struct {
	BaseURL     string
	ChatModel   string
	VisionModel string
	ImageModel  string
	Client      *http.Client
}

type OpenAIProvider struct {
	opts OpenAIOptions
}

func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIProvider{opts: opts}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) APIKeyPrefix() string {
	return "sk-"
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []openAIContentPart for vision
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type openAIImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *openAIError `json:"error,omitempty"`
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, apiKey string, req CompletionRequest) (string, error) {
	model := p.opts.ChatModel
	if req.Capability == CapabilityVision {
		model = p.opts.VisionModel
	}

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.ImageURL == "" {
			messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
			continue
		}
		messages = append(messages, openAIMessage{
			Role: m.Role,
			Content: []openAIContentPart{
				{Type: "text", Text: m.Content},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: m.ImageURL}},
			},
		})
	}

	body := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}

	var resp openAIChatResponse
	if err := p.post(ctx, apiKey, "/chat/completions", body, &resp, func() *openAIError { return resp.Error }); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &RemoteError{Message: "no choices returned"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateImage(ctx context.Context, apiKey string, req ImageRequest) (string, error) {
	size := req.Size
	if size == "" {
		size = defaultImageSize
	}
	body := openAIImageRequest{
		Model:  p.opts.ImageModel,
		Prompt: req.Prompt,
		N:      1,
		Size:   size,
	}

	var resp openAIImageResponse
	if err := p.post(ctx, apiKey, "/images/generations", body, &resp, func() *openAIError { return resp.Error }); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", &RemoteError{Message: "no image returned"}
	}
	return resp.Data[0].URL, nil
}

// post sends one JSON request. An "error" object in the body wins over the
// HTTP status, matching how the API reports failures.
func (p *OpenAIProvider) post(ctx context.Context, apiKey, path string, body, out any, apiErr func() *openAIError) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("openai: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: failed to read response: %w", err)
	}

	decodeErr := json.Unmarshal(raw, out)
	if decodeErr == nil {
		if e := apiErr(); e != nil && e.Message != "" {
			return &RemoteError{StatusCode: resp.StatusCode, Message: e.Message}
		}
	}
	if resp.StatusCode != http.StatusOK {
		return &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if decodeErr != nil {
		return fmt.Errorf("openai: failed to decode response: %w", decodeErr)
	}
	return nil
}
